package source

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/observability"
)

type fakeSource struct {
	tree        family.Tree
	persons     []family.Person
	personsErr  error
	treeErr     error
	calls       atomic.Int32
	blockOthers bool
}

func (f *fakeSource) Tree(context.Context, int64) (family.Tree, error) {
	f.calls.Add(1)
	return f.tree, f.treeErr
}

func (f *fakeSource) Persons(context.Context, int64) ([]family.Person, error) {
	f.calls.Add(1)
	return f.persons, f.personsErr
}

func (f *fakeSource) Relationships(ctx context.Context, _ int64) ([]family.ParentChildEdge, error) {
	f.calls.Add(1)
	if f.blockOthers {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []family.ParentChildEdge{{Parent: 1, Child: 2}}, nil
}

func (f *fakeSource) Marriages(context.Context, int64) ([]family.Marriage, error) {
	f.calls.Add(1)
	return nil, nil
}

func TestLoad(t *testing.T) {
	src := &fakeSource{persons: []family.Person{{ID: 1, FirstName: "A"}, {ID: 2, FirstName: "B"}}}
	snap, err := Load(context.Background(), src, 8)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Tree.ID != 8 {
		t.Errorf("Tree.ID = %d, want the requested id", snap.Tree.ID)
	}
	g := snap.Graph()
	if g.Empty() || !g.HasParent(2) {
		t.Error("graph not indexed from snapshot")
	}
	if src.calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", src.calls.Load())
	}
}

func TestLoadInvalidID(t *testing.T) {
	src := &fakeSource{}
	if _, err := Load(context.Background(), src, 0); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("error = %v", err)
	}
	if src.calls.Load() != 0 {
		t.Error("source called for invalid id")
	}
}

func TestLoadTreeFailureSkipsCollections(t *testing.T) {
	src := &fakeSource{treeErr: errors.New(errors.ErrCodeTreeNotFound, "gone")}
	if _, err := Load(context.Background(), src, 1); !errors.Is(err, errors.ErrCodeTreeNotFound) {
		t.Errorf("error = %v", err)
	}
	if src.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", src.calls.Load())
	}
}

func TestLoadFailureCancelsOthers(t *testing.T) {
	src := &fakeSource{personsErr: errors.New(errors.ErrCodeNetwork, "down"), blockOthers: true}
	done := make(chan error, 1)
	go func() {
		_, err := Load(context.Background(), src, 1)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, errors.ErrCodeNetwork) {
			t.Errorf("error = %v, want NETWORK_ERROR", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Load did not cancel the pending fetch")
	}
}

type loadHooks struct {
	observability.NoopPipelineHooks
	started, completed int
	persons            int
	err                error
}

func (h *loadHooks) OnLoadStart(context.Context, int64) { h.started++ }
func (h *loadHooks) OnLoadComplete(_ context.Context, _ int64, persons int, _ time.Duration, err error) {
	h.completed++
	h.persons, h.err = persons, err
}

func TestLoadHooks(t *testing.T) {
	hooks := &loadHooks{}
	observability.SetPipelineHooks(hooks)
	defer observability.Reset()

	src := &fakeSource{persons: []family.Person{{ID: 1, FirstName: "A"}}}
	if _, err := Load(context.Background(), src, 1); err != nil {
		t.Fatal(err)
	}
	if hooks.started != 1 || hooks.completed != 1 || hooks.persons != 1 || hooks.err != nil {
		t.Errorf("hooks = %+v", hooks)
	}
}

func TestMongoQueries(t *testing.T) {
	f := treeFilter(12)
	if len(f) != 1 || f[0].Key != "tree_id" || f[0].Value != int64(12) {
		t.Errorf("treeFilter = %v", f)
	}
	sort, ok := findOptions(PersonsCollection).Sort.(bson.D)
	if !ok || len(sort) != 2 || sort[0].Key != "date_of_birth" {
		t.Errorf("persons sort = %v", findOptions(PersonsCollection).Sort)
	}
	sort, ok = findOptions(MarriagesCollection).Sort.(bson.D)
	if !ok || len(sort) != 1 || sort[0].Key != "_id" {
		t.Errorf("marriages sort = %v", findOptions(MarriagesCollection).Sort)
	}
}

func TestMongoRecords(t *testing.T) {
	birth := time.Date(1950, 1, 2, 0, 0, 0, 0, time.UTC)
	ps, err := Persons([]PersonRecord{mongoPerson{ID: 1, FirstName: "A", Gender: "Male", DateOfBirth: birth, IsAlive: true}.record()})
	if err != nil {
		t.Fatal(err)
	}
	if !ps[0].BirthDate.Equal(birth) || !ps[0].Alive || ps[0].Gender != family.GenderMale {
		t.Errorf("person = %+v", ps[0])
	}
	ms, err := Marriages([]MarriageRecord{mongoMarriage{Spouse1ID: 1, Spouse2ID: 2, IsCurrent: true}.record()})
	if err != nil || !ms[0].Current {
		t.Errorf("marriage = %+v, %v", ms, err)
	}
	if _, err := Relationships([]RelationshipRecord{mongoRelationship{ParentID: 1}.record()}); err == nil {
		t.Error("invalid relationship accepted")
	}
}
