package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/civicsense/backend/internal/db"
)

type fakeMergeStore struct {
	linked map[string]string // child -> parent
	roots  map[string]bool   // parent eligibility
	events int
	calls  int
}

func newFakeMergeStore() *fakeMergeStore {
	return &fakeMergeStore{linked: map[string]string{}, roots: map[string]bool{}}
}

func (f *fakeMergeStore) MergeTickets(ctx context.Context, childID, parentID, reason string) (db.MergeOutcome, error) {
	f.calls++
	if !f.roots[parentID] {
		pp := "grandparent"
		return db.MergeOutcome{ParentParent: &pp}, nil
	}
	if prev, ok := f.linked[childID]; ok {
		p := prev
		return db.MergeOutcome{PrevParent: &p, AlreadyMerged: prev == parentID}, nil
	}
	f.linked[childID] = parentID
	f.events++
	return db.MergeOutcome{Applied: true, ChildCount: len(f.linked)}, nil
}

func newMergeManager(store MergeStore) *MergeManager {
	return &MergeManager{Store: store, Logger: zerolog.Nop()}
}

func TestMergeIdempotent(t *testing.T) {
	store := newFakeMergeStore()
	store.roots["parent"] = true
	m := newMergeManager(store)

	if err := m.Merge(context.Background(), "child", "parent", "duplicate"); err != nil {
		t.Fatalf("first merge failed: %v", err)
	}
	if err := m.Merge(context.Background(), "child", "parent", "duplicate"); err != nil {
		t.Fatalf("repeated merge must be a no-op, got %v", err)
	}
	if store.linked["child"] != "parent" {
		t.Fatalf("unexpected final link: %v", store.linked)
	}
	if store.events != 1 {
		t.Fatalf("expected exactly one merged event, got %d", store.events)
	}
}

func TestMergeRejectsSelfMerge(t *testing.T) {
	store := newFakeMergeStore()
	m := newMergeManager(store)

	err := m.Merge(context.Background(), "t1", "t1", "duplicate")
	var conflict MergeConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected MergeConflict, got %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("self-merge must be rejected before touching storage")
	}
}

func TestMergeRejectsNonRootParent(t *testing.T) {
	store := newFakeMergeStore()
	m := newMergeManager(store)

	err := m.Merge(context.Background(), "child", "already-a-child", "duplicate")
	var conflict MergeConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected MergeConflict, got %v", err)
	}
	if len(store.linked) != 0 {
		t.Fatalf("conflicting merge must not be applied")
	}
}

func TestMergeRejectsRelinkToDifferentParent(t *testing.T) {
	store := newFakeMergeStore()
	store.roots["p1"] = true
	store.roots["p2"] = true
	m := newMergeManager(store)

	if err := m.Merge(context.Background(), "child", "p1", "duplicate"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := m.Merge(context.Background(), "child", "p2", "duplicate")
	var conflict MergeConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected MergeConflict on relink, got %v", err)
	}
	if store.linked["child"] != "p1" {
		t.Fatalf("original link must be preserved, got %v", store.linked)
	}
}
