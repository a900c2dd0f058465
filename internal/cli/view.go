package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/layout"
	"github.com/matzehuels/stemma/pkg/render"
	"github.com/matzehuels/stemma/pkg/source"
	"github.com/matzehuels/stemma/pkg/view"
)

const (
	// unitsPerCol is how many diagram units one terminal column spans at
	// zoom 1.
	unitsPerCol = 6.0

	panCols  = 8
	panRows  = 4
	zoomStep = 1.25

	// chromeRows are taken by the title, status and help lines.
	chromeRows = 3
)

var (
	viewSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	viewErrorStyle    = lipgloss.NewStyle().Foreground(colorRed)
)

const viewHelp = "←↑↓→ pan  +/- zoom  c center  tab select  ⏎ toggle  e expand  a collapse  r reload  x export  q quit"

// Messages produced by the viewer's commands.
type (
	reloadedMsg    struct{ err error }
	fileChangedMsg struct{}
	exportedMsg    struct {
		path string
		exp  *view.Export
		err  error
	}
)

// viewModel is the bubbletea model of `stemma view`. All tree state lives in
// the session; the model only adds the terminal size and the selection.
type viewModel struct {
	ctx     context.Context
	session *view.Session
	changes <-chan struct{}
	quality view.Quality

	cols, rows int
	selected   int64
	status     string
	err        error
}

func newViewModel(ctx context.Context, session *view.Session, changes <-chan struct{}, q view.Quality) viewModel {
	m := viewModel{
		ctx:     ctx,
		session: session,
		changes: changes,
		quality: q,
		cols:    80,
		rows:    24 - chromeRows,
	}
	m.resize()
	return m
}

func (m viewModel) Init() tea.Cmd {
	return waitForChange(m.changes)
}

// waitForChange delivers the next file change as a message.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return fileChangedMsg{}
	}
}

func (m viewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.cols = max(1, msg.Width)
		m.rows = max(1, msg.Height-chromeRows)
		m.resize()

	case fileChangedMsg:
		m.status = "file changed, reloading"
		return m, tea.Batch(m.reload(), waitForChange(m.changes))

	case reloadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = "reloaded"
			if m.nodeIndex(m.selected) < 0 {
				m.selected = 0
			}
		}

	case exportedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = describeExport(msg.path, msg.exp)
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m viewModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.session
	m.err = nil
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "left", "h":
		s.Pan(panCols*unitsPerCol, 0)
	case "right", "l":
		s.Pan(-panCols*unitsPerCol, 0)
	case "up", "k":
		s.Pan(0, panRows*unitsPerCol*2)
	case "down", "j":
		s.Pan(0, -panRows*unitsPerCol*2)
	case "+", "=":
		s.Zoom(zoomStep, m.viewportCenter())
	case "-", "_":
		s.Zoom(1/zoomStep, m.viewportCenter())
	case "c":
		s.Center()
		m.status = "centered"
	case "e":
		s.ExpandAll(m.ctx)
		m.status = "expanded all"
	case "a":
		s.CollapseAll(m.ctx)
		m.status = "collapsed all"
	case "tab":
		m.selectNext(1)
	case "shift+tab":
		m.selectNext(-1)
	case "enter", " ":
		if m.selected == 0 {
			m.status = "nothing selected (tab selects)"
			break
		}
		collapsed, err := s.Toggle(m.ctx, m.selected)
		if err != nil {
			m.err = err
			break
		}
		m.status = "expanded"
		if collapsed {
			m.status = "collapsed"
		}
		m.focus(m.selected)
	case "r":
		m.status = "reloading"
		return m, m.reload()
	case "x":
		m.status = "exporting " + m.quality.Name
		return m, m.export()
	}
	return m, nil
}

// resize fits the session viewport to the grid so that one column covers
// unitsPerCol diagram units.
func (m *viewModel) resize() {
	f := render.GridFrame(m.cols, m.rows, layout.Point{}, unitsPerCol, render.Identity)
	if err := m.session.Resize(f.ViewBox.Width(), f.ViewBox.Height()); err != nil {
		m.err = err
	}
}

// viewportCenter is the middle of the viewport in output units.
func (m viewModel) viewportCenter() layout.Point {
	vb := m.session.Frame().ViewBox
	return layout.Point{X: vb.Width() / 2, Y: vb.Height() / 2}
}

func (m viewModel) nodeIndex(id int64) int {
	for i, n := range m.session.Layout().Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// selectNext moves the selection by step through the visible nodes and
// brings the new node into the middle of the view.
func (m *viewModel) selectNext(step int) {
	nodes := m.session.Layout().Nodes
	if len(nodes) == 0 {
		return
	}
	i := m.nodeIndex(m.selected)
	switch {
	case i < 0 && step < 0:
		i = len(nodes) - 1
	case i < 0:
		i = 0
	default:
		i = (i + step + len(nodes)) % len(nodes)
	}
	m.selected = nodes[i].ID
	m.focus(m.selected)
}

// focus pans so that the node id sits in the middle of the viewport.
func (m viewModel) focus(id int64) {
	i := m.nodeIndex(id)
	if i < 0 {
		return
	}
	n := m.session.Layout().Nodes[i]
	f := m.session.Frame()
	p := f.Transform.Apply(layout.Point{X: n.X, Y: n.Y})
	cx := f.ViewBox.MinX + f.ViewBox.Width()/2
	cy := f.ViewBox.MinY + f.ViewBox.Height()/2
	m.session.Pan(cx-p.X, cy-p.Y)
}

func (m viewModel) reload() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		return reloadedMsg{err: s.Reload(ctx)}
	}
}

func (m viewModel) export() tea.Cmd {
	ctx, s, q := m.ctx, m.session, m.quality
	return func() tea.Msg {
		exp, err := s.Export(ctx, q)
		if err != nil {
			return exportedMsg{err: err}
		}
		if err := writeOutput(exp.Filename, exp.Data); err != nil {
			return exportedMsg{err: err}
		}
		return exportedMsg{path: exp.Filename, exp: exp}
	}
}

func (m viewModel) View() string {
	var b strings.Builder

	lay := m.session.Layout()
	t := m.session.Transform()
	b.WriteString(StyleTitle.Render(m.session.Tree().DisplayName()))
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %d shown · zoom %.2fx", len(lay.Nodes), t.K)))
	b.WriteString("\n")

	f := m.session.Frame()
	f.Width, f.Height = float64(m.cols), float64(m.rows)
	grid := render.NewGridSurface()
	if err := m.session.DrawFrame(grid, f); err != nil {
		b.WriteString(viewErrorStyle.Render(err.Error()))
	} else {
		b.WriteString(grid.Styled())
	}
	b.WriteString("\n")

	b.WriteString(m.statusLine(lay))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render(viewHelp))
	return b.String()
}

func (m viewModel) statusLine(lay layout.Layout) string {
	var parts []string
	if i := m.nodeIndex(m.selected); i >= 0 {
		n := lay.Nodes[i]
		sel := fmt.Sprintf("%s %s (%d)", iconInfo, n.Name, n.ID)
		switch {
		case n.Collapsed:
			sel += " [+]"
		case n.HasChildren:
			sel += " [-]"
		}
		parts = append(parts, viewSelectedStyle.Render(sel))
	}
	if m.err != nil {
		parts = append(parts, viewErrorStyle.Render(iconError+" "+errors.UserMessage(m.err)))
	} else if m.status != "" {
		parts = append(parts, StyleDim.Render(m.status))
	}
	return strings.Join(parts, "  ")
}

type viewOpts struct {
	quality string
	noCache bool
	noWatch bool

	collapse collapseFlags
	source   sourceFlags
}

// viewCommand creates the interactive viewer command.
func (c *CLI) viewCommand() *cobra.Command {
	var opts viewOpts

	cmd := &cobra.Command{
		Use:   "view [tree-id]",
		Short: "Browse a family tree in the terminal",
		Long: `View draws the tree in the terminal and lets you pan, zoom and collapse
branches. Trees read from a file are reloaded when the file changes, keeping
the current collapse state.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := view.ParseQuality(opts.quality)
			if err != nil {
				return err
			}
			opts.source.apply(&c.cfg)
			return c.runView(cmd.Context(), args, q, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.quality, "quality", "q", view.QualityHD.Name, "quality of exports made with x: HD or 4K")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "do not reload when the tree file changes")
	opts.collapse.register(cmd)
	opts.source.register(cmd)

	return cmd
}

func (c *CLI) runView(ctx context.Context, args []string, q view.Quality, opts viewOpts) error {
	runner, closeRunner, err := c.newRunner(ctx, opts.noCache)
	if err != nil {
		return err
	}
	defer closeRunner()

	treeID, err := c.resolveTreeID(ctx, args, runner.Source)
	if err != nil {
		return err
	}
	collapsed, err := opts.collapse.ids()
	if err != nil {
		return err
	}

	session := c.newSession(runner, treeID)
	if err := session.Reload(ctx); err != nil {
		return err
	}
	if opts.collapse.collapseAll {
		session.CollapseAll(ctx)
	} else if err := session.SetCollapsed(ctx, collapsed); err != nil {
		return err
	}
	// Log lines would tear through the alternate screen.
	runner.Logger = discardLogger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var changes chan struct{}
	if fs, ok := runner.Source.(*source.FileSource); ok && !opts.noWatch {
		changes = make(chan struct{}, 1)
		go func() {
			err := fs.Watch(ctx, func() {
				select {
				case changes <- struct{}{}:
				default:
				}
			})
			if err != nil {
				c.Logger.Debug("watch stopped", "error", err)
			}
		}()
	}

	m := newViewModel(ctx, session, changes, q)
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("viewer: %w", err)
	}
	return nil
}
