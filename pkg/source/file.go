package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
)

// Document is the on-disk form of one tree, in JSON or YAML.
type Document struct {
	Tree          TreeRecord           `json:"tree" yaml:"tree"`
	Persons       []PersonRecord       `json:"persons" yaml:"persons"`
	Relationships []RelationshipRecord `json:"relationships" yaml:"relationships"`
	Marriages     []MarriageRecord     `json:"marriages" yaml:"marriages"`
}

// DecodeDocument parses data as YAML when name ends in .yaml or .yml and as
// JSON otherwise.
func DecodeDocument(name string, data []byte) (*Document, error) {
	var doc Document
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse %s", name)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse %s", name)
		}
	}
	return &doc, nil
}

// FileSource serves a single tree from a local file. The tree id of the
// file must match the requested id unless the file leaves it unset.
//
// The file is re-read whenever its modification time or size changes.
type FileSource struct {
	path string

	mu      sync.Mutex
	doc     *Document
	modTime time.Time
	size    int64
}

// NewFileSource returns a source reading path.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "file path is empty")
	}
	return &FileSource{path: path}, nil
}

// Path returns the file being served.
func (s *FileSource) Path() string { return s.path }

// TreeID returns the id recorded in the file, or 1 when it has none.
func (s *FileSource) TreeID(ctx context.Context) (int64, error) {
	doc, err := s.document(ctx)
	if err != nil {
		return 0, err
	}
	if doc.Tree.ID > 0 {
		return doc.Tree.ID, nil
	}
	return 1, nil
}

func (s *FileSource) document(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "tree file %s", s.path)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "stat %s", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return s.doc, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read %s", s.path)
	}
	doc, err := DecodeDocument(s.path, data)
	if err != nil {
		return nil, err
	}
	s.doc, s.modTime, s.size = doc, info.ModTime(), info.Size()
	return doc, nil
}

func (s *FileSource) tree(ctx context.Context, treeID int64) (*Document, error) {
	doc, err := s.document(ctx)
	if err != nil {
		return nil, err
	}
	if doc.Tree.ID != 0 && doc.Tree.ID != treeID {
		return nil, errors.New(errors.ErrCodeTreeNotFound, "%s holds tree %d, not %d", s.path, doc.Tree.ID, treeID)
	}
	return doc, nil
}

func (s *FileSource) Tree(ctx context.Context, treeID int64) (family.Tree, error) {
	doc, err := s.tree(ctx, treeID)
	if err != nil {
		return family.Tree{}, err
	}
	return Tree(doc.Tree)
}

func (s *FileSource) Persons(ctx context.Context, treeID int64) ([]family.Person, error) {
	doc, err := s.tree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	return Persons(doc.Persons)
}

func (s *FileSource) Relationships(ctx context.Context, treeID int64) ([]family.ParentChildEdge, error) {
	doc, err := s.tree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	return Relationships(doc.Relationships)
}

func (s *FileSource) Marriages(ctx context.Context, treeID int64) ([]family.Marriage, error) {
	doc, err := s.tree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	return Marriages(doc.Marriages)
}

// watchDebounce coalesces the bursts of events editors produce on save.
const watchDebounce = 100 * time.Millisecond

// Watch calls onChange after the file is written, created or renamed into
// place, until ctx is done. The parent directory is watched so that editors
// that replace the file on save are followed.
func (s *FileSource) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", s.path, err)
		case <-timer.C:
			onChange()
		}
	}
}
