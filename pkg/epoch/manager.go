// Package epoch implements Merlin's epoch state machine: opening an
// epoch, accepting proofs into its accumulator, and sealing it into a
// signed settlement snapshot.
package epoch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/swarmos/merlin/pkg/codec"
	"github.com/swarmos/merlin/pkg/metrics"
	"github.com/swarmos/merlin/pkg/model"
	"github.com/swarmos/merlin/pkg/schema"
)

const (
	epochsDir      = "/swarmledger/epochs"
	defaultReward  = 0.10
	documentType   = "epoch"
	documentVers   = "1.0.0"
)

// Store is the subset of store.Client the epoch manager depends on.
type Store interface {
	PublishSnapshot(ctx context.Context, canonical []byte, directory, id string) (string, error)
	FilesRead(ctx context.Context, path string) ([]byte, error)
	Cat(ctx context.Context, cid string) ([]byte, error)
	PubsubPub(ctx context.Context, topic string, data []byte) error
}

// accumulatorEntry mirrors the reference's {proof, job, processed_at}
// tuple; job may be nil when the referenced job could not be fetched.
type accumulatorEntry struct {
	proof       *model.Proof
	job         *model.Job
	processedAt int64
}

// Manager owns the epoch state machine's mutable state as plain struct
// fields — current epoch, accumulator, processed set — passed around
// explicitly rather than held in package-level singletons.
type Manager struct {
	store      Store
	privateKey string
	identity   string
	pool       string
	providerShare float64
	epochDuration time.Duration
	metrics    *metrics.Registry

	epochNumber int
	current     *model.Epoch
	accumulator []accumulatorEntry
	processed   map[string]struct{}
}

// Config collects the knobs a Manager needs beyond its Store dependency.
type Config struct {
	PrivateKey      string
	Identity        string
	Pool            string
	ProviderShare   float64
	EpochDuration   time.Duration
	Metrics         *metrics.Registry
}

// New builds a Manager with no open epoch; call Open to start the first
// one.
func New(s Store, cfg Config) *Manager {
	return &Manager{
		store:         s,
		privateKey:    cfg.PrivateKey,
		identity:      cfg.Identity,
		pool:          cfg.Pool,
		providerShare: cfg.ProviderShare,
		epochDuration: cfg.EpochDuration,
		metrics:       cfg.Metrics,
		processed:     make(map[string]struct{}),
	}
}

// Open starts the next epoch: increments epoch_number, builds a fresh
// active document, signs and publishes it, announces it on the pool's
// "epochs/opened" topic, and clears the in-memory accumulator.
func (m *Manager) Open(ctx context.Context) (*model.Epoch, error) {
	m.epochNumber++
	now := time.Now().Unix()

	e := &model.Epoch{
		Type:            documentType,
		Version:         documentVers,
		EpochID:         fmt.Sprintf("epoch-%04d", m.epochNumber),
		EpochNumber:     m.epochNumber,
		Name:            epochName(m.epochNumber),
		Status:          "active",
		StartedAt:       now,
		EndedAt:         nil,
		Timestamp:       now,
		TotalVolumeUSDC: "0.00",
		MerkleRoot:      nil,
		Proofs:          []string{},
		Controller:      m.identity,
	}

	cid, err := m.signAndPublish(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("opening epoch %s: %w", e.EpochID, err)
	}

	m.current = e
	m.accumulator = nil
	m.processed = make(map[string]struct{})

	if m.metrics != nil {
		m.metrics.EpochNumber.Set(float64(m.epochNumber))
		m.metrics.EpochProofCount.Set(0)
	}

	m.announce(ctx, "opened", map[string]interface{}{
		"epoch_id":   e.EpochID,
		"name":       e.Name,
		"started_at": e.StartedAt,
		"cid":        cid,
	})

	return e, nil
}

// Resume adopts an existing active epoch document as current, with an
// empty accumulator, so a crashed daemon's epoch can be recovered by
// replaying the live proofs directory through AcceptProof before Seal.
// This backs the manual `seal <epoch_id>` recovery path; it does not
// restore whatever proofs the crashed process had already accumulated
// in memory, since those were never durably recorded.
func (m *Manager) Resume(e *model.Epoch) {
	m.current = e
	m.epochNumber = e.EpochNumber
	m.accumulator = nil
	m.processed = make(map[string]struct{})
}

// Current returns the currently active epoch, or nil if none is open.
func (m *Manager) Current() *model.Epoch {
	return m.current
}

// ProofCount returns the number of proofs accepted into the current
// epoch's accumulator so far. Current().Proofs stays empty until Seal
// populates it, so callers that need live progress (the heartbeat) must
// read this instead.
func (m *Manager) ProofCount() int {
	return len(m.accumulator)
}

// ShouldSeal reports whether the current epoch has reached its seal
// deadline.
func (m *Manager) ShouldSeal() bool {
	if m.current == nil {
		return false
	}
	return time.Now().Unix()-m.current.StartedAt >= int64(m.epochDuration.Seconds())
}

// AcceptProof runs one newly-observed proof through dedup, schema
// validation, and best-effort job lookup, appending it to the
// accumulator on acceptance. It returns false with reasons when the
// proof is rejected; reasons is empty only for the duplicate-proof-id
// rejection, whose cause is unambiguous.
func (m *Manager) AcceptProof(ctx context.Context, p *model.Proof) (bool, []string, error) {
	if m.current == nil {
		return false, []string{"no active epoch"}, nil
	}
	if _, dup := m.processed[p.ProofID]; dup {
		return false, nil, nil
	}

	ok, reasons := schema.ValidateProof(p)
	if !ok {
		if m.metrics != nil {
			m.metrics.ProofsRejected.Inc()
		}
		// Schema failures are not marked processed, so a corrected
		// republish of the same proof_id is retried on a later poll.
		return false, reasons, nil
	}

	job := m.fetchJob(ctx, p.JobCID)

	m.accumulator = append(m.accumulator, accumulatorEntry{
		proof:       p,
		job:         job,
		processedAt: time.Now().Unix(),
	})
	m.processed[p.ProofID] = struct{}{}

	if m.metrics != nil {
		m.metrics.ProofsAccepted.Inc()
		m.metrics.EpochProofCount.Set(float64(len(m.accumulator)))
	}

	return true, nil, nil
}

func (m *Manager) fetchJob(ctx context.Context, jobCID string) *model.Job {
	if jobCID == "" {
		return nil
	}
	data, err := m.store.Cat(ctx, jobCID)
	if err != nil {
		return nil
	}
	var j model.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil
	}
	return &j
}

// reward extracts a proof's settlement amount: the referenced job's
// payment.amount if present and parseable, else the default reward.
func reward(entry accumulatorEntry) float64 {
	if entry.job == nil || entry.job.Payment.Amount == "" {
		return defaultReward
	}
	amount, err := strconv.ParseFloat(entry.job.Payment.Amount, 64)
	if err != nil {
		return defaultReward
	}
	return amount
}

// Seal closes the current epoch: computes settlements and the Merkle
// root over the accepted proof IDs, overlays the sealed fields onto the
// previous active document, re-signs, and publishes to the same
// mutable path (the prior active CID remains pinned and fetchable).
func (m *Manager) Seal(ctx context.Context) (*model.Epoch, error) {
	if m.current == nil {
		return nil, ErrNoActiveEpoch
	}

	// Snapshot before computing anything, so no concurrent addition
	// (impossible under the single-threaded supervisor, but defended
	// against here too) can leak into this seal.
	accumulator := m.accumulator

	settlements := &model.Settlements{Providers: make(map[string]float64)}
	proofIDs := make([]string, 0, len(accumulator))
	for _, entry := range accumulator {
		r := reward(entry)
		settlements.TotalVolume += r
		settlements.Providers[entry.proof.Provider] += r * m.providerShare
		proofIDs = append(proofIDs, entry.proof.ProofID)
	}
	settlements.ProviderPool = settlements.TotalVolume * m.providerShare
	settlements.NetworkOps = settlements.TotalVolume * (1 - m.providerShare)
	settlements.ProviderCount = len(settlements.Providers)

	merkleRoot, err := codec.MerkleRoot(proofIDs)
	if err != nil {
		return nil, fmt.Errorf("computing merkle root: %w", err)
	}

	now := time.Now().Unix()
	sealed := *m.current
	sealed.Status = "sealed"
	sealed.EndedAt = &now
	sealed.Timestamp = now
	sealed.JobsCount = len(accumulator)
	sealed.ProofsCount = len(accumulator)
	sealed.TotalVolumeUSDC = fmt.Sprintf("%.2f", settlements.TotalVolume)
	sealed.MerkleRoot = &merkleRoot
	sealed.Settlements = settlements
	sealed.Proofs = proofIDs
	sealed.Sig = ""

	cid, err := m.signAndPublish(ctx, &sealed)
	if err != nil {
		return nil, fmt.Errorf("sealing epoch %s: %w", sealed.EpochID, err)
	}

	if m.metrics != nil {
		m.metrics.EpochsSealed.Inc()
		m.metrics.SettlementVolume.Add(settlements.TotalVolume)
	}

	m.announce(ctx, "sealed", map[string]interface{}{
		"epoch_id":     sealed.EpochID,
		"jobs_count":   sealed.JobsCount,
		"total_volume": sealed.TotalVolumeUSDC,
		"merkle_root":  sealed.MerkleRoot,
		"cid":          cid,
	})

	m.current = &sealed
	return &sealed, nil
}

func (m *Manager) signAndPublish(ctx context.Context, e *model.Epoch) (string, error) {
	doc, err := model.ToMap(e)
	if err != nil {
		return "", fmt.Errorf("encoding epoch document: %w", err)
	}
	sig, err := codec.SignDocument(m.privateKey, doc)
	if err != nil {
		return "", fmt.Errorf("signing epoch document: %w", err)
	}
	e.Sig = sig

	canonical, err := codec.CanonicalJSON(mustToMap(e))
	if err != nil {
		return "", fmt.Errorf("canonicalizing epoch document: %w", err)
	}

	cid, err := m.store.PublishSnapshot(ctx, canonical, epochsDir, e.EpochID)
	if err != nil {
		return "", fmt.Errorf("publishing epoch document: %w", err)
	}
	return cid, nil
}

func mustToMap(e *model.Epoch) map[string]interface{} {
	m, err := model.ToMap(e)
	if err != nil {
		// e is always a well-formed struct; ToMap only fails on
		// non-serializable Go values, which model.Epoch never is.
		panic(err)
	}
	return m
}

// announce publishes payload verbatim to the pool's "epochs/<kind>" topic.
// Unlike the heartbeat topic, the opened/sealed epoch payloads carry no
// "type" field of their own — callers pass exactly the documented shape.
func (m *Manager) announce(ctx context.Context, kind string, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	// Pubsub is best-effort: a subscriber missing an announcement does
	// not affect the settlement snapshot already durably published.
	_ = m.store.PubsubPub(ctx, fmt.Sprintf("/%s/epochs/%s", m.pool, kind), data)
}
