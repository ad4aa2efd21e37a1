// Package watcher polls the object store's proof directory for newly
// published proofs. It never validates proof content — that is the
// schema package's job — it only dedupes and delivers.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/swarmos/merlin/pkg/model"
)

const proofsDir = "/swarmpool/proofs"

// Store is the subset of store.Client the watcher depends on.
type Store interface {
	FilesLS(ctx context.Context, path string) ([]string, error)
	FilesRead(ctx context.Context, path string) ([]byte, error)
}

// Watcher tracks which proof IDs have already been delivered, so a poll
// cycle never hands the same proof to the epoch manager twice.
type Watcher struct {
	store Store

	mu        sync.Mutex
	seen      map[string]struct{}
	totalSeen int
	lastPoll  time.Time
}

// New builds a Watcher against store.
func New(s Store) *Watcher {
	return &Watcher{
		store: s,
		seen:  make(map[string]struct{}),
	}
}

// Poll lists the proofs directory and fetches every proof ID not already
// seen. A proof ID is only marked seen once its fetch succeeds, so a
// transient fetch failure leaves it eligible for retry on the next poll.
func (w *Watcher) Poll(ctx context.Context) ([]*model.Proof, error) {
	ids, err := w.store.FilesLS(ctx, proofsDir)
	if err != nil {
		return nil, fmt.Errorf("listing proofs directory: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var fresh []*model.Proof
	for _, id := range ids {
		if _, ok := w.seen[id]; ok {
			continue
		}

		data, err := w.store.FilesRead(ctx, fmt.Sprintf("%s/%s.json", proofsDir, id))
		if err != nil {
			// Fetch failed — leave unseen so the next poll retries it.
			continue
		}

		var p model.Proof
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}

		fresh = append(fresh, &p)
		w.seen[id] = struct{}{}
		w.totalSeen++
	}
	w.lastPoll = time.Now()

	return fresh, nil
}

// Forget removes the given proof IDs from the seen set, so a
// long-running daemon can bound its memory once the epoch manager
// confirms those proofs are durably sealed. Nothing in the daemon calls
// it, and SEEN_SET_RETENTION_EPOCHS is not wired to it, so the seen set
// keeps every ID for the life of the process whatever that setting says.
func (w *Watcher) Forget(proofIDs []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range proofIDs {
		delete(w.seen, id)
	}
}

// Stats reports watcher liveness counters.
type Stats struct {
	TotalSeen   int
	KnownProofs int
	LastPoll    time.Time
}

// Stats returns a snapshot of the watcher's counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		TotalSeen:   w.totalSeen,
		KnownProofs: len(w.seen),
		LastPoll:    w.lastPoll,
	}
}
