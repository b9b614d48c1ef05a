package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/BadgerOps/chumweb/internal/catalog"
	"github.com/BadgerOps/chumweb/internal/form"
)

// backendLookup runs the form controller directly against the backend,
// without a round trip through the JSON endpoints.
type backendLookup struct {
	backend Backend
}

func (l backendLookup) Catalog(ctx context.Context) (catalog.Catalog, error) {
	return l.backend.Repositories(ctx)
}

func (l backendLookup) Links(ctx context.Context, version, arch string) (catalog.Links, error) {
	return l.backend.Packages(ctx, catalog.RepoID(version, arch))
}

// linkView is one link and its "not available" placeholder.
type linkView struct {
	ID            string
	PlaceholderID string
	URL           string
	Label         string
	Shown         bool
	Placeholder   bool
}

// pageView is the template data of the download page. It is filled by
// the form controller through the Presenter methods below.
type pageView struct {
	Title           string
	Variant         string
	Versions        []string
	SelectedVersion string
	ArchOptions     []string
	SelectedArch    string
	ArchVisible     bool
	Loading         bool
	FormVisible     bool
	Chum            linkView
	GUI             linkView
	Alerts          []string
}

func newPageView(variant form.Variant) *pageView {
	return &pageView{
		Title:           "SailfishOS:Chum",
		Variant:         variant.String(),
		SelectedVersion: form.None,
		SelectedArch:    form.None,
		Chum:            linkView{ID: form.LinkChum.LinkID(), PlaceholderID: form.LinkChum.PlaceholderID()},
		GUI:             linkView{ID: form.LinkGUI.LinkID(), PlaceholderID: form.LinkGUI.PlaceholderID()},
	}
}

func (v *pageView) link(kind form.LinkKind) *linkView {
	if kind == form.LinkGUI {
		return &v.GUI
	}
	return &v.Chum
}

func (v *pageView) RenderVersions(versions []string) {
	v.Versions = versions
}

func (v *pageView) RenderArchitectures(options []string, selected string) {
	v.ArchOptions = options
	v.SelectedArch = selected
}

func (v *pageView) ShowArchitectures() {
	v.ArchVisible = true
}

func (v *pageView) HideLinks() {
	for _, l := range []*linkView{&v.Chum, &v.GUI} {
		l.URL, l.Label = "", ""
		l.Shown, l.Placeholder = false, false
	}
}

func (v *pageView) ShowLink(kind form.LinkKind, url, label string) {
	l := v.link(kind)
	l.URL, l.Label = url, label
	l.Shown, l.Placeholder = true, false
}

func (v *pageView) ShowPlaceholder(kind form.LinkKind) {
	l := v.link(kind)
	l.URL, l.Label = "", ""
	l.Shown, l.Placeholder = false, true
}

func (v *pageView) SetLoading(loading bool) {
	v.Loading = loading
}

func (v *pageView) RevealForm() {
	v.FormVisible = true
}

func (v *pageView) Alert(message string) {
	v.Alerts = append(v.Alerts, message)
}

// handleIndex renders the download page. The sfos and arch query
// parameters replay the selections a browser made.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.lookupContext(r)
	defer cancel()

	view := newPageView(s.formOpts.Variant)
	ctrl := form.New(s.formOpts, backendLookup{backend: s.backend}, view, s.logger)

	if err := ctrl.Initialize(ctx); err != nil {
		captureError(r.Context(), err)
	} else {
		s.applySelection(ctx, r, ctrl, view)
	}

	state := ctrl.Snapshot()
	view.SelectedVersion = state.Selection.Version
	view.SelectedArch = state.Selection.Arch

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", view); err != nil {
		s.logger.Error("failed to render download page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

func (s *Server) applySelection(ctx context.Context, r *http.Request, ctrl *form.Controller, view *pageView) {
	query := r.URL.Query()
	version, arch := query.Get("sfos"), query.Get("arch")
	if version == "" || version == form.None {
		return
	}

	// An arch the version does not offer resets to none, like a version
	// change in the browser.
	if err := ctrl.Replay(ctx, form.Selection{Version: version, Arch: arch}); err != nil {
		s.selectionError(r, view, err)
	}
}

// selectionError surfaces a rejected selection. Lookup failures were
// already shown through Alert.
func (s *Server) selectionError(r *http.Request, view *pageView, err error) {
	switch {
	case errors.Is(err, form.ErrLookupFailed):
		captureError(r.Context(), err)
	case errors.Is(err, form.ErrUnknownVersion), errors.Is(err, form.ErrUnknownArchitecture):
		view.Alert(err.Error())
	default:
		s.logger.Warn("selection failed", "id", RequestID(r.Context()), "error", err)
		view.Alert(err.Error())
	}
}
