// Package model defines the JSON document shapes Merlin reads and writes:
// proofs and jobs authored by workers/clients, and the epoch snapshots the
// daemon itself owns.
package model

import "encoding/json"

// Metrics carries a proof's quality signals.
type Metrics struct {
	InferenceSeconds float64 `json:"inference_seconds"`
	Confidence       float64 `json:"confidence"`
}

// Proof is a worker-published attestation that it answered a job.
type Proof struct {
	Type       string  `json:"type"`
	Version    string  `json:"version"`
	ProofID    string  `json:"proof_id"`
	JobCID     string  `json:"job_cid"`
	OutputCID  string  `json:"output_cid"`
	Metrics    Metrics `json:"metrics"`
	Provider   string  `json:"provider"`
	Timestamp  int64   `json:"timestamp"`
	ProofHash  string  `json:"proof_hash"`
	Sig        string  `json:"sig"`
}

// Payment is the subset of a job document Merlin cares about.
type Payment struct {
	Amount string `json:"amount"`
}

// Job is a client-authored work request, fetched by CID to learn the
// reward owed for a proof that answers it. Fields outside this set are
// opaque to Merlin and ignored.
type Job struct {
	Type      string  `json:"type"`
	JobID     string  `json:"job_id"`
	Model     string  `json:"model"`
	InputCID  string  `json:"input_cid"`
	Client    string  `json:"client"`
	Timestamp int64   `json:"timestamp"`
	Sig       string  `json:"sig"`
	Payment   Payment `json:"payment"`
}

// Settlements is the per-epoch reward distribution, populated only once
// an epoch is sealed.
type Settlements struct {
	TotalVolume    float64            `json:"total_volume"`
	ProviderPool   float64            `json:"provider_pool"`
	NetworkOps     float64            `json:"network_ops"`
	Providers      map[string]float64 `json:"providers"`
	ProviderCount  int                `json:"provider_count"`
}

// Epoch is Merlin's settlement snapshot: it opens active and is overwritten
// once, in place, when sealed.
type Epoch struct {
	Type             string       `json:"type"`
	Version          string       `json:"version"`
	EpochID          string       `json:"epoch_id"`
	EpochNumber      int          `json:"epoch_number"`
	Name             string       `json:"name"`
	Status           string       `json:"status"`
	StartedAt        int64        `json:"started_at"`
	EndedAt          *int64       `json:"ended_at"`
	Timestamp        int64        `json:"timestamp"`
	JobsCount        int          `json:"jobs_count"`
	ProofsCount      int          `json:"proofs_count"`
	TotalVolumeUSDC  string       `json:"total_volume_usdc"`
	MerkleRoot       *string      `json:"merkle_root"`
	Settlements      *Settlements `json:"settlements"`
	Proofs           []string     `json:"proofs"`
	Controller       string       `json:"controller"`
	Sig              string       `json:"sig"`
}

// Heartbeat is the liveness announcement published to the pool's
// heartbeats topic.
type Heartbeat struct {
	Type           string `json:"type"`
	HeartbeatID    string `json:"heartbeat_id"`
	Controller     string `json:"controller"`
	CurrentEpoch   string `json:"current_epoch"`
	EpochProofs    int    `json:"epoch_proofs"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Timestamp      int64  `json:"timestamp"`
}

// ToMap round-trips v through JSON to produce a generic document, the
// shape the codec package signs and hashes.
func ToMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FromMap decodes a generic document back into a typed value.
func FromMap(m map[string]interface{}, v interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
