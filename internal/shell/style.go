package shell

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	header lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
	ok     lipgloss.Style
	label  lipgloss.Style
}

// newStyles binds the palette to out so colour is dropped for non-terminals.
func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).
			Border(lipgloss.NormalBorder(), false, false, true, false).Padding(0, 1),
		warn:  r.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		fail:  r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		ok:    r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		label: r.NewStyle().Width(18),
	}
}

func (s *Shell) printHeader() {
	title := "Disk Inspector"
	if s.opts.Version != "" {
		title += " v" + s.opts.Version
	}
	s.println(s.styles.header.Render(title))
}
