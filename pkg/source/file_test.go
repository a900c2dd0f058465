package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/stemma/pkg/errors"
)

const sampleYAML = `
tree:
  tree_id: 4
  tree_name: Berg Family
persons:
  - {person_id: 1, first_name: Anna, gender: Female, date_of_birth: 1940-01-01}
  - {person_id: 2, first_name: Ben, gender: Male}
  - {person_id: 3, first_name: Cleo, is_alive: true}
relationships:
  - {parent_id: 1, child_id: 3}
marriages:
  - {spouse1_id: 1, spouse2_id: 2, is_current: 1}
`

const sampleJSON = `{
  "tree": {"tree_id": 4, "tree_name": "Berg Family"},
  "persons": [
    {"person_id": 1, "first_name": "Anna", "gender": "Female", "date_of_birth": "1940-01-01"},
    {"person_id": 2, "first_name": "Ben", "gender": "Male"},
    {"person_id": 3, "first_name": "Cleo", "is_alive": true}
  ],
  "relationships": [{"parent_id": 1, "child_id": 3}],
  "marriages": [{"spouse1_id": 1, "spouse2_id": 2, "is_current": 1}]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileSource(t *testing.T) {
	for _, tc := range []struct{ name, content string }{
		{"tree.yaml", sampleYAML},
		{"tree.json", sampleJSON},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src, err := NewFileSource(writeFile(t, tc.name, tc.content))
			if err != nil {
				t.Fatal(err)
			}
			id, err := src.TreeID(context.Background())
			if err != nil || id != 4 {
				t.Fatalf("TreeID = %d, %v", id, err)
			}
			snap, err := Load(context.Background(), src, id)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if snap.Tree.Name != "Berg Family" || len(snap.Persons) != 3 {
				t.Errorf("snapshot = %+v", snap)
			}
			if snap.Persons[0].BirthDate.Year() != 1940 || !snap.Persons[2].Alive {
				t.Errorf("persons = %+v", snap.Persons)
			}
			if len(snap.Relationships) != 1 || snap.Relationships[0].Child != 3 {
				t.Errorf("relationships = %+v", snap.Relationships)
			}
			if len(snap.Marriages) != 1 || !snap.Marriages[0].Current {
				t.Errorf("marriages = %+v", snap.Marriages)
			}
		})
	}
}

func TestFileSourceWrongTree(t *testing.T) {
	src, _ := NewFileSource(writeFile(t, "tree.yaml", sampleYAML))
	_, err := Load(context.Background(), src, 5)
	if !errors.Is(err, errors.ErrCodeTreeNotFound) {
		t.Errorf("error = %v, want TREE_NOT_FOUND", err)
	}
}

func TestFileSourceMissing(t *testing.T) {
	src, _ := NewFileSource(filepath.Join(t.TempDir(), "nope.json"))
	_, err := src.Persons(context.Background(), 1)
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestFileSourceMalformed(t *testing.T) {
	src, _ := NewFileSource(writeFile(t, "tree.json", `{"persons": [`))
	_, err := src.Persons(context.Background(), 1)
	if !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("error = %v, want INVALID_FORMAT", err)
	}
}

func TestFileSourceRereadsOnChange(t *testing.T) {
	path := writeFile(t, "tree.yaml", sampleYAML)
	src, _ := NewFileSource(path)
	ps, err := src.Persons(context.Background(), 4)
	if err != nil || len(ps) != 3 {
		t.Fatalf("Persons = %d, %v", len(ps), err)
	}

	next := sampleYAML + "  - {spouse1_id: 3, spouse2_id: 2}\n"
	if err := os.WriteFile(path, []byte(next), 0o644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	os.Chtimes(path, later, later)

	ms, err := src.Marriages(context.Background(), 4)
	if err != nil || len(ms) != 2 {
		t.Errorf("Marriages = %d, %v", len(ms), err)
	}
}

func TestFileSourceEmptyPath(t *testing.T) {
	if _, err := NewFileSource(""); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("error = %v", err)
	}
}

func TestFileSourceWatch(t *testing.T) {
	path := writeFile(t, "tree.yaml", sampleYAML)
	src, _ := NewFileSource(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- src.Watch(ctx, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func TestFileSourceWatchIgnoresSiblings(t *testing.T) {
	path := writeFile(t, "tree.yaml", sampleYAML)
	src, _ := NewFileSource(path)

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	calls := 0
	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0o644)
	}()
	if err := src.Watch(ctx, func() { calls++ }); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("onChange called %d times for an unrelated file", calls)
	}
}
