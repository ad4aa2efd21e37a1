package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/swarmos/merlin/pkg/model"
)

type fakeStore struct {
	ids        []string
	proofs     map[string]*model.Proof
	failOnRead map[string]bool
}

func (f *fakeStore) FilesLS(ctx context.Context, path string) ([]string, error) {
	return f.ids, nil
}

func (f *fakeStore) FilesRead(ctx context.Context, path string) ([]byte, error) {
	for id, p := range f.proofs {
		if path == "/swarmpool/proofs/"+id+".json" {
			if f.failOnRead[id] {
				return nil, errors.New("fetch failed")
			}
			return json.Marshal(p)
		}
	}
	return nil, errors.New("not found")
}

func TestPollDedupesAcrossCalls(t *testing.T) {
	store := &fakeStore{
		ids: []string{"proof-1"},
		proofs: map[string]*model.Proof{
			"proof-1": {ProofID: "proof-1", Type: "proof"},
		},
	}
	w := New(store)

	first, err := w.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first poll = %d proofs, want 1", len(first))
	}

	second, err := w.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second poll = %d proofs, want 0 (dedup)", len(second))
	}
}

func TestPollRetriesAfterFetchFailure(t *testing.T) {
	store := &fakeStore{
		ids: []string{"proof-1"},
		proofs: map[string]*model.Proof{
			"proof-1": {ProofID: "proof-1", Type: "proof"},
		},
		failOnRead: map[string]bool{"proof-1": true},
	}
	w := New(store)

	first, err := w.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(first) != 0 {
		t.Fatalf("expected fetch failure to yield zero proofs, got %d", len(first))
	}

	store.failOnRead["proof-1"] = false
	second, err := w.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected retry to succeed after failure cleared, got %d proofs", len(second))
	}
}

func TestForgetAllowsRedelivery(t *testing.T) {
	store := &fakeStore{
		ids: []string{"proof-1"},
		proofs: map[string]*model.Proof{
			"proof-1": {ProofID: "proof-1", Type: "proof"},
		},
	}
	w := New(store)
	w.Poll(context.Background())
	w.Forget([]string{"proof-1"})

	second, err := w.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected forgotten proof to be redelivered, got %d", len(second))
	}
}
