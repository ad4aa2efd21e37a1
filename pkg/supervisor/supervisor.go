// Package supervisor drives Merlin's single cooperative control loop:
// poll for proofs, feed them to the epoch manager, seal on deadline,
// publish a rate-limited heartbeat, sleep.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmos/merlin/pkg/metrics"
	"github.com/swarmos/merlin/pkg/model"
)

const (
	errorBackoff      = 5 * time.Second
	heartbeatInterval = 30 * time.Second
)

// State is the supervisor's run state.
type State int

const (
	// StateStopped means the loop is not running.
	StateStopped State = iota
	// StateRunning means the loop is actively ticking.
	StateRunning
)

// Watcher is the subset of watcher.Watcher the supervisor depends on.
type Watcher interface {
	Poll(ctx context.Context) ([]*model.Proof, error)
}

// EpochManager is the subset of epoch.Manager the supervisor depends on.
type EpochManager interface {
	Open(ctx context.Context) (*model.Epoch, error)
	Current() *model.Epoch
	ProofCount() int
	ShouldSeal() bool
	AcceptProof(ctx context.Context, p *model.Proof) (bool, []string, error)
	Seal(ctx context.Context) (*model.Epoch, error)
}

// Publisher is the subset of store.Client the supervisor needs for
// heartbeat announcements.
type Publisher interface {
	PubsubPub(ctx context.Context, topic string, data []byte) error
}

// Config collects the knobs a Supervisor needs.
type Config struct {
	Watcher      Watcher
	EpochManager EpochManager
	Publisher    Publisher
	Identity     string
	Pool         string
	PollInterval time.Duration
	Metrics      *metrics.Registry
	Logger       *log.Logger
}

// Supervisor runs the tick loop described in the design: it owns no
// concurrent writers of its own — watcher, epoch manager, and the
// supervisor itself all execute on the same goroutine.
type Supervisor struct {
	watcher      Watcher
	epochManager EpochManager
	publisher    Publisher
	identity     string
	pool         string
	pollInterval time.Duration
	metrics      *metrics.Registry
	logger       *log.Logger

	startTime     time.Time
	lastHeartbeat time.Time

	mu       sync.RWMutex
	state    State
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Supervisor. cfg.Logger defaults to a stdlib logger
// prefixed "[supervisor] " if nil.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[supervisor] ", log.LstdFlags)
	}
	return &Supervisor{
		watcher:      cfg.Watcher,
		epochManager: cfg.EpochManager,
		publisher:    cfg.Publisher,
		identity:     cfg.Identity,
		pool:         cfg.Pool,
		pollInterval: cfg.PollInterval,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// State reports the supervisor's current run state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start opens the first epoch and launches the tick loop in its own
// goroutine. It returns once the first epoch is open; the loop itself
// runs until ctx is cancelled or Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.epochManager.Current() == nil {
		if _, err := s.epochManager.Open(ctx); err != nil {
			return fmt.Errorf("opening initial epoch: %w", err)
		}
	}

	s.mu.Lock()
	s.startTime = time.Now()
	s.state = StateRunning
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop signals the loop to stop at the next tick boundary, forces a
// final seal of any epoch holding proofs, and waits for the loop
// goroutine to exit.
func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *Supervisor) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.state = StateStopped
		close(s.doneCh)
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finalSeal(context.Background())
			return
		case <-s.stopCh:
			s.finalSeal(context.Background())
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Printf("tick error: %v", err)
				time.Sleep(errorBackoff)
			}
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) error {
	proofs, err := s.watcher.Poll(ctx)
	if err != nil {
		return fmt.Errorf("polling watcher: %w", err)
	}

	for _, p := range proofs {
		accepted, reasons, err := s.epochManager.AcceptProof(ctx, p)
		if err != nil {
			return fmt.Errorf("accepting proof %s: %w", p.ProofID, err)
		}
		if !accepted && len(reasons) > 0 {
			s.logger.Printf("rejected proof %s: %v", p.ProofID, reasons)
		}
	}

	if s.epochManager.ShouldSeal() {
		sealed, err := s.epochManager.Seal(ctx)
		if err != nil {
			return fmt.Errorf("sealing epoch: %w", err)
		}
		s.logger.Printf("sealed %s: jobs=%d volume=%s", sealed.EpochID, sealed.JobsCount, sealed.TotalVolumeUSDC)

		if _, err := s.epochManager.Open(ctx); err != nil {
			return fmt.Errorf("opening next epoch: %w", err)
		}
	}

	s.maybePublishHeartbeat(ctx)
	return nil
}

func (s *Supervisor) maybePublishHeartbeat(ctx context.Context) {
	if time.Since(s.lastHeartbeat) < heartbeatInterval {
		return
	}

	current := s.epochManager.Current()
	epochID := ""
	if current != nil {
		epochID = current.EpochID
	}
	proofCount := s.epochManager.ProofCount()

	hb := model.Heartbeat{
		Type:          "heartbeat",
		HeartbeatID:   uuid.NewString(),
		Controller:    s.identity,
		CurrentEpoch:  epochID,
		EpochProofs:   proofCount,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Timestamp:     time.Now().Unix(),
	}
	data, err := json.Marshal(hb)
	if err != nil {
		return
	}

	// Best-effort: a missed heartbeat never affects settlement state.
	if err := s.publisher.PubsubPub(ctx, fmt.Sprintf("/%s/heartbeats", s.pool), data); err != nil {
		s.logger.Printf("heartbeat publish failed: %v", err)
		return
	}
	if s.metrics != nil {
		s.metrics.HeartbeatsSent.Inc()
	}
	s.lastHeartbeat = time.Now()
}

func (s *Supervisor) finalSeal(ctx context.Context) {
	current := s.epochManager.Current()
	if current == nil || current.Status != "active" || s.epochManager.ProofCount() == 0 {
		return
	}
	if _, err := s.epochManager.Seal(ctx); err != nil {
		s.logger.Printf("final seal on shutdown failed: %v", err)
	}
}
