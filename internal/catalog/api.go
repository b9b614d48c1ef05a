package catalog

import "net/url"

// FunctionsBase is the path prefix of the lookup endpoints. It is kept from
// the Netlify deployment so existing pages keep working.
const FunctionsBase = "/.netlify/functions/lambda"

// RepositoriesResponse is the body of GET {FunctionsBase}/repositories.
type RepositoriesResponse struct {
	Repositories Catalog `json:"repositories"`
}

// ErrorResponse is the body of every failed lookup.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RepositoriesPath returns the catalog endpoint path.
func RepositoriesPath() string {
	return FunctionsBase + "/repositories"
}

// PackagesPath returns the combined {version}_{arch} lookup path.
func PackagesPath(version, arch string) string {
	return FunctionsBase + "/packages/" + url.PathEscape(RepoID(version, arch))
}

// NestedPath returns the {version}/{arch} lookup path used by the static form.
func NestedPath(version, arch string) string {
	return FunctionsBase + "/" + url.PathEscape(version) + "/" + url.PathEscape(arch)
}
