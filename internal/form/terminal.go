package form

import (
	"fmt"
	"io"
	"strings"
)

// TerminalPresenter prints form changes as plain text lines.
type TerminalPresenter struct {
	w       io.Writer
	verbose bool
}

// NewTerminalPresenter writes to w. With verbose set, selector and loading
// changes are printed too; otherwise only links and alerts are.
func NewTerminalPresenter(w io.Writer, verbose bool) *TerminalPresenter {
	return &TerminalPresenter{w: w, verbose: verbose}
}

func (p *TerminalPresenter) RenderVersions(versions []string) {
	if p.verbose {
		fmt.Fprintf(p.w, "versions: %s\n", strings.Join(versions, ", "))
	}
}

func (p *TerminalPresenter) RenderArchitectures(options []string, selected string) {
	if p.verbose {
		fmt.Fprintf(p.w, "architectures: %s (selected: %s)\n", strings.Join(options[1:], ", "), selected)
	}
}

func (p *TerminalPresenter) ShowArchitectures() {}

func (p *TerminalPresenter) HideLinks() {}

func (p *TerminalPresenter) ShowLink(kind LinkKind, url, label string) {
	fmt.Fprintf(p.w, "%-5s %s\n      %s\n", kind, label, url)
}

func (p *TerminalPresenter) ShowPlaceholder(kind LinkKind) {
	fmt.Fprintf(p.w, "%-5s not available\n", kind)
}

func (p *TerminalPresenter) SetLoading(loading bool) {
	if p.verbose && loading {
		fmt.Fprintln(p.w, "loading...")
	}
}

func (p *TerminalPresenter) RevealForm() {}

func (p *TerminalPresenter) Alert(message string) {
	fmt.Fprintf(p.w, "error: %s\n", strings.ReplaceAll(message, "\n\n", ": "))
}
