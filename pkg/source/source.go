package source

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/observability"
)

// Source provides the collections of one family tree.
type Source interface {
	Tree(ctx context.Context, treeID int64) (family.Tree, error)
	Persons(ctx context.Context, treeID int64) ([]family.Person, error)
	Relationships(ctx context.Context, treeID int64) ([]family.ParentChildEdge, error)
	Marriages(ctx context.Context, treeID int64) ([]family.Marriage, error)
}

// Snapshot is one consistent load of a tree.
type Snapshot struct {
	Tree          family.Tree              `json:"tree"`
	Persons       []family.Person          `json:"persons"`
	Relationships []family.ParentChildEdge `json:"relationships"`
	Marriages     []family.Marriage        `json:"marriages"`
	LoadedAt      time.Time                `json:"loaded_at"`
}

// Graph indexes the snapshot for building.
func (s *Snapshot) Graph() *family.Graph {
	return family.NewGraph(s.Tree, s.Persons, s.Relationships, s.Marriages)
}

// Load fetches the tree header, then its three collections concurrently.
// The first failure cancels the others; nothing is retried.
func Load(ctx context.Context, src Source, treeID int64) (*Snapshot, error) {
	if err := errors.ValidateTreeID(treeID); err != nil {
		return nil, err
	}
	start := time.Now()
	observability.Pipeline().OnLoadStart(ctx, treeID)

	snap, err := load(ctx, src, treeID)

	persons := 0
	if snap != nil {
		persons = len(snap.Persons)
	}
	observability.Pipeline().OnLoadComplete(ctx, treeID, persons, time.Since(start), err)
	return snap, err
}

func load(ctx context.Context, src Source, treeID int64) (*Snapshot, error) {
	tree, err := src.Tree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	if tree.ID == 0 {
		tree.ID = treeID
	}

	snap := &Snapshot{Tree: tree}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Persons, err = src.Persons(gctx, treeID)
		return err
	})
	g.Go(func() (err error) {
		snap.Relationships, err = src.Relationships(gctx, treeID)
		return err
	})
	g.Go(func() (err error) {
		snap.Marriages, err = src.Marriages(gctx, treeID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	snap.LoadedAt = time.Now()
	return snap, nil
}
