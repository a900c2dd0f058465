package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/stemma/pkg/cache"
	"github.com/matzehuels/stemma/pkg/pipeline"
	"github.com/matzehuels/stemma/pkg/source"
	"github.com/matzehuels/stemma/pkg/view"
)

func newTestModel(t *testing.T, changes <-chan struct{}) (viewModel, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "berg.yaml")
	if err := os.WriteFile(path, []byte(bergYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := source.NewFileSource(path)
	if err != nil {
		t.Fatal(err)
	}
	runner := pipeline.NewRunner(src, cache.NewNullCache(), nil, discardLogger())
	session := view.New(runner, 7)
	if err := session.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	m := newViewModel(context.Background(), session, changes, view.QualityHD)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(viewModel), path
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m viewModel, keys ...string) viewModel {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(viewModel)
	}
	return m
}

func TestViewModelRender(t *testing.T) {
	m, _ := newTestModel(t, nil)
	out := m.View()
	for _, want := range []string{"Berg Family", "Anna", "Cleo", "tab select"} {
		if !strings.Contains(out, want) {
			t.Errorf("view lacks %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n") + 1; lines != 30 {
		t.Errorf("view has %d lines, want the window height 30", lines)
	}
}

func TestViewModelToggle(t *testing.T) {
	m, _ := newTestModel(t, nil)

	m = press(t, m, "enter")
	if m.status != "nothing selected (tab selects)" {
		t.Errorf("status = %q", m.status)
	}

	// Nodes are laid out Anna, Cleo, Dan.
	m = press(t, m, "tab", "tab")
	if m.selected != 3 {
		t.Fatalf("selected = %d, want Cleo (3)", m.selected)
	}
	m = press(t, m, "enter")
	if got := len(m.session.Layout().Nodes); got != 2 {
		t.Errorf("after collapsing Cleo %d nodes shown, want 2", got)
	}
	if !strings.Contains(m.View(), "Cleo (3) [+]") {
		t.Errorf("status line should mark Cleo collapsed:\n%s", m.View())
	}

	m = press(t, m, "e")
	if got := len(m.session.Layout().Nodes); got != 3 {
		t.Errorf("after expand all %d nodes shown, want 3", got)
	}
	m = press(t, m, "a")
	if got := len(m.session.Layout().Nodes); got != 1 {
		t.Errorf("after collapse all %d nodes shown, want 1", got)
	}
}

func TestViewModelPanZoom(t *testing.T) {
	m, _ := newTestModel(t, nil)

	m = press(t, m, "+")
	if k := m.session.Transform().K; k != zoomStep {
		t.Errorf("zoom = %v, want %v", k, zoomStep)
	}
	before := m.session.Transform()
	m = press(t, m, "left")
	if after := m.session.Transform(); after.X != before.X+panCols*unitsPerCol {
		t.Errorf("pan left moved X from %v to %v", before.X, after.X)
	}
	m = press(t, m, "c")
	if tr := m.session.Transform(); tr.K != 1 || tr.X != 0 || tr.Y != 0 {
		t.Errorf("center left transform %+v", tr)
	}
}

func TestViewModelReloadOnChange(t *testing.T) {
	changes := make(chan struct{}, 1)
	m, path := newTestModel(t, changes)
	m = press(t, m, "tab", "tab", "enter")

	grown := strings.Replace(bergYAML, "relationships:\n", "  - {person_id: 5, first_name: Ella}\nrelationships:\n  - {parent_id: 3, child_id: 5}\n", 1)
	if err := os.WriteFile(path, []byte(grown), 0o644); err != nil {
		t.Fatal(err)
	}
	changes <- struct{}{}

	wait := m.Init()
	if wait == nil {
		t.Fatal("Init should wait for file changes")
	}
	next, cmd := m.Update(wait())
	m = next.(viewModel)
	if cmd == nil {
		t.Fatal("file change should trigger a reload")
	}

	// The batch holds the reload and the next wait; only the reload is ready.
	next, _ = m.Update(m.reload()())
	m = next.(viewModel)
	if m.err != nil || m.status != "reloaded" {
		t.Fatalf("reload: status %q, err %v", m.status, m.err)
	}
	if got := len(m.session.Snapshot().Persons); got != 5 {
		t.Errorf("persons after reload = %d, want 5", got)
	}
	if c := m.session.Collapsed(); len(c) != 1 || c[0] != 3 {
		t.Errorf("collapse state after reload = %v, want [3]", c)
	}
}

func TestViewModelQuit(t *testing.T) {
	m, _ := newTestModel(t, nil)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
}
