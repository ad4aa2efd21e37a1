package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/swarmos/merlin/pkg/model"
)

type fakeWatcher struct {
	proofs []*model.Proof
	calls  int
}

func (f *fakeWatcher) Poll(ctx context.Context) ([]*model.Proof, error) {
	f.calls++
	out := f.proofs
	f.proofs = nil
	return out, nil
}

type fakeEpochManager struct {
	current      *model.Epoch
	accepted     []*model.Proof
	shouldSeal   bool
	sealCalls    int
	openCalls    int
}

func (f *fakeEpochManager) Open(ctx context.Context) (*model.Epoch, error) {
	f.openCalls++
	f.current = &model.Epoch{EpochID: "epoch-0001", Status: "active"}
	return f.current, nil
}

func (f *fakeEpochManager) Current() *model.Epoch { return f.current }

func (f *fakeEpochManager) ProofCount() int { return len(f.accepted) }

func (f *fakeEpochManager) ShouldSeal() bool { return f.shouldSeal }

func (f *fakeEpochManager) AcceptProof(ctx context.Context, p *model.Proof) (bool, []string, error) {
	f.accepted = append(f.accepted, p)
	return true, nil, nil
}

func (f *fakeEpochManager) Seal(ctx context.Context) (*model.Epoch, error) {
	f.sealCalls++
	f.current = &model.Epoch{EpochID: f.current.EpochID, Status: "sealed"}
	return f.current, nil
}

type fakePublisher struct{ published int }

func (f *fakePublisher) PubsubPub(ctx context.Context, topic string, data []byte) error {
	f.published++
	return nil
}

func TestTickFeedsProofsAndSeals(t *testing.T) {
	w := &fakeWatcher{proofs: []*model.Proof{{ProofID: "p1"}}}
	em := &fakeEpochManager{shouldSeal: true}
	em.Open(context.Background())
	pub := &fakePublisher{}

	s := New(Config{
		Watcher:      w,
		EpochManager: em,
		Publisher:    pub,
		Identity:     "merlin.swarmos.eth",
		Pool:         "swarmpool.eth",
		PollInterval: time.Millisecond,
	})

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(em.accepted) != 1 {
		t.Errorf("accepted = %d, want 1", len(em.accepted))
	}
	if em.sealCalls != 1 {
		t.Errorf("sealCalls = %d, want 1", em.sealCalls)
	}
	if em.openCalls != 2 { // initial Open() + post-seal re-open
		t.Errorf("openCalls = %d, want 2", em.openCalls)
	}
	if pub.published != 1 {
		t.Errorf("published = %d, want 1 (first heartbeat always fires)", pub.published)
	}
}

func TestHeartbeatRateLimited(t *testing.T) {
	w := &fakeWatcher{}
	em := &fakeEpochManager{}
	em.Open(context.Background())
	pub := &fakePublisher{}

	s := New(Config{
		Watcher:      w,
		EpochManager: em,
		Publisher:    pub,
		Identity:     "merlin.swarmos.eth",
		Pool:         "swarmpool.eth",
		PollInterval: time.Millisecond,
	})

	s.tick(context.Background())
	s.tick(context.Background())
	s.tick(context.Background())

	if pub.published != 1 {
		t.Errorf("published = %d, want 1 (heartbeats rate-limited to once per 30s)", pub.published)
	}
}

func TestFinalSealOnlySealsActiveEpoch(t *testing.T) {
	em := &fakeEpochManager{}
	em.Open(context.Background())
	em.accepted = append(em.accepted, &model.Proof{ProofID: "p1"})

	s := New(Config{
		Watcher:      &fakeWatcher{},
		EpochManager: em,
		Publisher:    &fakePublisher{},
		Identity:     "merlin.swarmos.eth",
		Pool:         "swarmpool.eth",
		PollInterval: time.Millisecond,
	})

	s.finalSeal(context.Background())
	if em.sealCalls != 1 {
		t.Errorf("sealCalls = %d, want 1", em.sealCalls)
	}

	s.finalSeal(context.Background())
	if em.sealCalls != 1 {
		t.Errorf("expected finalSeal to be a no-op on an already-sealed epoch, sealCalls = %d", em.sealCalls)
	}
}
