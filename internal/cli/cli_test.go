package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/stemma/pkg/config"
	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/source"
)

const bergYAML = `tree: {tree_id: 7, tree_name: Berg Family}
marriages:
  - {spouse1_id: 1, spouse2_id: 2, is_current: 1}
persons:
  - {person_id: 1, first_name: Anna, last_name: Berg, gender: Female, date_of_birth: 1940-03-01}
  - {person_id: 2, first_name: Ben, last_name: Berg, gender: Male}
  - {person_id: 3, first_name: Cleo, last_name: Berg, is_alive: true}
  - {person_id: 4, first_name: Dan}
relationships:
  - {parent_id: 1, child_id: 3}
  - {parent_id: 3, child_id: 4, relationship_type: Adoptive}
`

// islandYAML adds Eve and Finn, each recorded as the other's parent, so
// neither is reachable from a root.
var islandYAML = strings.Replace(bergYAML, "relationships:\n", `  - {person_id: 5, first_name: Eve}
  - {person_id: 6, first_name: Finn}
relationships:
  - {parent_id: 5, child_id: 6}
  - {parent_id: 6, child_id: 5}
`, 1)

// setup writes the tree and a config reading it, and captures stdout.
func setup(t *testing.T, tree string) (cfgPath string, out *bytes.Buffer) {
	t.Helper()
	for _, k := range []string{config.EnvAPIURL, config.EnvAPIToken, config.EnvMongoURI, config.EnvRedisAddr} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	treePath := filepath.Join(dir, "berg.yaml")
	if err := os.WriteFile(treePath, []byte(tree), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath = filepath.Join(dir, "config.toml")
	cfg := "[source]\nkind = \"file\"\nfile = \"" + filepath.ToSlash(treePath) + "\"\n\n[cache]\nkind = \"none\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	out = &bytes.Buffer{}
	prev := stdout
	stdout = out
	t.Cleanup(func() { stdout = prev })
	return cfgPath, out
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty defaults to svg", "", []string{"svg"}},
		{"single format", "png", []string{"png"}},
		{"multiple formats", "svg,pdf,jpeg", []string{"svg", "pdf", "jpeg"}},
		{"spaces and case", " SVG , dot ,", []string{"svg", "dot"}},
		{"only commas", ",,", []string{"svg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseFormats(tt.input); !slices.Equal(got, tt.want) {
				t.Errorf("parseFormats(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		input   string
		want    []int64
		wantErr bool
	}{
		{"", nil, false},
		{"3", []int64{3}, false},
		{"3, 12,,7", []int64{3, 12, 7}, false},
		{"3,x", nil, true},
	}

	for _, tt := range tests {
		got, err := parseIDs(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIDs(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("parseIDs(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		output, tree, format string
		multiple             bool
		want                 string
	}{
		{"", "Berg Family", "svg", false, "berg-family-tree.svg"},
		{"", "", "jpeg", false, "family-tree-tree.jpg"},
		{"out/x.svg", "Berg", "svg", false, "out/x.svg"},
		{"out/x.svg", "Berg", "png", true, "out/x.png"},
		{"out/x", "Berg", "graphviz", true, "out/x.graphviz.svg"},
	}

	for _, tt := range tests {
		if got := outputPath(tt.output, tt.tree, tt.format, tt.multiple); got != tt.want {
			t.Errorf("outputPath(%q, %q, %q, %v) = %q, want %q", tt.output, tt.tree, tt.format, tt.multiple, got, tt.want)
		}
	}
}

func TestRootCommand(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"render", "export", "check", "view", "serve", "cache", "version", "completion"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing subcommand %q in %v", want, names)
		}
	}
}

func TestRenderCommand(t *testing.T) {
	cfgPath, out := setup(t, islandYAML)
	dir := t.TempDir()
	base := filepath.Join(dir, "tree.svg")

	if err := execute(t, "--config", cfgPath, "render", "-f", "svg,json", "-o", base, "--collapsed", "3"); err != nil {
		t.Fatalf("render: %v", err)
	}

	svg, err := os.ReadFile(base)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(svg, []byte("Anna")) || bytes.Contains(svg, []byte(">Dan<")) {
		t.Errorf("svg should show Anna and hide the collapsed Dan")
	}
	if _, err := os.Stat(filepath.Join(dir, "tree.json")); err != nil {
		t.Errorf("json output missing: %v", err)
	}
	if !strings.Contains(out.String(), "Berg Family") {
		t.Errorf("output lacks tree name:\n%s", out)
	}
	if !strings.Contains(out.String(), "not reachable") {
		t.Errorf("output lacks the unplaced warning:\n%s", out)
	}
}

func TestRenderCommandErrors(t *testing.T) {
	cfgPath, _ := setup(t, bergYAML)
	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"bad format", []string{"render", "-f", "gif"}, errors.ErrCodeUnsupported},
		{"bad tree id", []string{"render", "seven"}, errors.ErrCodeInvalidInput},
		{"wrong tree", []string{"render", "8"}, errors.ErrCodeTreeNotFound},
		{"bad collapsed", []string{"render", "--collapsed", "a"}, errors.ErrCodeInvalidInput},
		{"photos without base", []string{"render", "--photos"}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(t, append([]string{"--config", cfgPath}, tt.args...)...)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestExportCommand(t *testing.T) {
	cfgPath, out := setup(t, bergYAML)
	path := filepath.Join(t.TempDir(), "berg.jpg")

	if err := execute(t, "--config", cfgPath, "export", "-o", path, "--quality", "hd", "--collapse-all"); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Errorf("output is not a JPEG")
	}
	if !strings.Contains(out.String(), "HD") {
		t.Errorf("output lacks quality:\n%s", out)
	}

	if err := execute(t, "--config", cfgPath, "export", "--quality", "8K"); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unknown quality: error = %v", err)
	}
}

func TestCheckCommand(t *testing.T) {
	cfgPath, out := setup(t, islandYAML)

	if err := execute(t, "--config", cfgPath, "check"); err != nil {
		t.Fatalf("check: %v", err)
	}
	for _, want := range []string{"Anna Berg", "spouse", "unplaced", "1940 - ?"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report lacks %q:\n%s", want, out)
		}
	}

	if err := execute(t, "--config", cfgPath, "check", "--strict"); err == nil {
		t.Error("check --strict should fail on an unplaced person")
	}
}

func TestCheckCommandClean(t *testing.T) {
	cfgPath, out := setup(t, bergYAML)

	if err := execute(t, "--config", cfgPath, "check", "--strict"); err != nil {
		t.Fatalf("check --strict: %v", err)
	}
	if !strings.Contains(out.String(), "No data problems") {
		t.Errorf("report:\n%s", out)
	}
}

func TestPlacements(t *testing.T) {
	doc, err := source.DecodeDocument("berg.yaml", []byte(islandYAML))
	if err != nil {
		t.Fatal(err)
	}
	persons, _ := source.Persons(doc.Persons)
	edges, _ := source.Relationships(doc.Relationships)
	marriages, _ := source.Marriages(doc.Marriages)
	snap := &source.Snapshot{Persons: persons, Relationships: edges, Marriages: marriages}
	h := family.Build(snap.Graph(), family.BuildOptions{})

	got := map[int64]string{}
	for _, p := range placements(snap, h) {
		got[p.Person.ID] = p.Status
	}
	want := map[int64]string{1: placedRoot, 2: placedSpouse, 3: placedNode, 4: placedNode, 5: placedUnplaced, 6: placedUnplaced}
	for id, st := range want {
		if got[id] != st {
			t.Errorf("person %d placed %q, want %q", id, got[id], st)
		}
	}
}

func TestCacheCommands(t *testing.T) {
	cfgPath, out := setup(t, bergYAML)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "ab"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "ab", "entry.json"), []byte("{}"), 0o644)
	os.WriteFile(filepath.Join(dir, "top.json"), []byte("{}"), 0o644)

	n, err := clearDir(dir)
	if err != nil || n != 2 {
		t.Errorf("clearDir = %d, %v; want 2 files", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ab")); !os.IsNotExist(err) {
		t.Errorf("subdirectory not removed")
	}
	if n, err := clearDir(filepath.Join(dir, "missing")); err != nil || n != 0 {
		t.Errorf("clearDir(missing) = %d, %v", n, err)
	}

	t.Setenv("XDG_CACHE_HOME", dir)
	if err := execute(t, "--config", cfgPath, "cache", "clear"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Cache is empty") {
		t.Errorf("output:\n%s", out)
	}
}
