package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/BadgerOps/chumweb/internal/catalog"
)

// handleRedirectIndex redirects / to the download page.
func (s *Server) handleRedirectIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/index.html", http.StatusPermanentRedirect)
}

// handleRepositories returns the release catalog.
func (s *Server) handleRepositories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.lookupContext(r)
	defer cancel()

	releases, err := s.backend.Repositories(ctx)
	if err != nil {
		s.jsonError(w, r, http.StatusInternalServerError, err)
		return
	}
	if releases == nil {
		releases = catalog.Catalog{}
	}
	s.writeJSON(w, http.StatusOK, catalog.RepositoriesResponse{Repositories: releases})
}

// handlePackages resolves GET .../packages/{version}_{arch}.
func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	s.servePackages(w, r, r.PathValue("repo"))
}

// handleNestedPackages resolves GET .../{version}/{arch}.
func (s *Server) handleNestedPackages(w http.ResponseWriter, r *http.Request) {
	s.servePackages(w, r, catalog.RepoID(r.PathValue("version"), r.PathValue("arch")))
}

func (s *Server) servePackages(w http.ResponseWriter, r *http.Request, repoID string) {
	ctx, cancel := s.lookupContext(r)
	defer cancel()

	links, err := s.backend.Packages(ctx, repoID)
	if err != nil {
		s.jsonError(w, r, http.StatusInternalServerError, err, "repo", repoID)
		return
	}
	s.writeJSON(w, http.StatusOK, links)
}

// handleAPINotFound answers unknown paths under the function base.
func (s *Server) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, catalog.ErrorResponse{Error: "Not found"})
}

// lookupContext bounds a backend call by the request and the upstream timeout.
func (s *Server) lookupContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.upstreamTimeout())
}

// writeJSON encodes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// jsonError logs err, reports it and writes it as an {"error": ...} body.
func (s *Server) jsonError(w http.ResponseWriter, r *http.Request, status int, err error, attrs ...any) {
	args := append([]any{"id", RequestID(r.Context()), "path", r.URL.Path, "error", err}, attrs...)
	s.logger.Error("lookup failed", args...)
	captureError(r.Context(), err)
	s.writeJSON(w, status, catalog.ErrorResponse{Error: err.Error()})
}
