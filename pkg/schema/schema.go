// Package schema validates proof, job, and epoch documents before Merlin
// accepts them. Schema is law: a document that fails validation is
// rejected outright, never partially trusted.
package schema

import (
	"fmt"
	"strings"

	"github.com/swarmos/merlin/pkg/codec"
	"github.com/swarmos/merlin/pkg/model"
)

// ValidateProof checks a proof document against the required fields,
// returning the list of human-readable reasons for every defect found
// (not just the first).
func ValidateProof(p *model.Proof) (bool, []string) {
	var reasons []string

	if p.Type != "proof" {
		reasons = append(reasons, fmt.Sprintf("type must be 'proof', got %q", p.Type))
	}

	requiredStrings := map[string]string{
		"proof_id":   p.ProofID,
		"job_cid":    p.JobCID,
		"output_cid": p.OutputCID,
		"provider":   p.Provider,
		"proof_hash": p.ProofHash,
		"sig":        p.Sig,
	}
	for _, field := range []string{"proof_id", "job_cid", "output_cid", "provider", "proof_hash", "sig"} {
		if requiredStrings[field] == "" {
			reasons = append(reasons, "missing required field: "+field)
		}
	}

	if p.Metrics.Confidence < 0 || p.Metrics.Confidence > 1 {
		reasons = append(reasons, "metrics.confidence must be between 0 and 1")
	}

	if p.Timestamp == 0 {
		reasons = append(reasons, "missing required field: timestamp")
	}

	for _, field := range []struct{ name, value string }{{"job_cid", p.JobCID}, {"output_cid", p.OutputCID}} {
		if field.value != "" && !codec.IsValidCID(field.value) {
			reasons = append(reasons, field.name+" does not look like a valid CID")
		}
	}

	if p.ProofHash != "" && !strings.HasPrefix(p.ProofHash, "0x") {
		reasons = append(reasons, "proof_hash must be 0x-prefixed")
	}
	if p.Sig != "" && !strings.HasPrefix(p.Sig, "0x") {
		reasons = append(reasons, "sig must be 0x-prefixed")
	}
	if p.Provider != "" && !strings.HasSuffix(p.Provider, ".eth") {
		reasons = append(reasons, "provider must be an ENS name (ending in .eth)")
	}

	return len(reasons) == 0, reasons
}

// ValidateJob checks a job document. The epoch manager does not call it:
// it reads payment.amount from whatever job document it fetches, and only
// a missing job or an unparseable amount falls back to the default reward.
func ValidateJob(j *model.Job) (bool, []string) {
	var reasons []string

	if j.Type != "job" {
		reasons = append(reasons, "type must be 'job'")
	}

	required := map[string]string{
		"job_id":    j.JobID,
		"model":     j.Model,
		"input_cid": j.InputCID,
		"client":    j.Client,
		"sig":       j.Sig,
	}
	for _, field := range []string{"job_id", "model", "input_cid", "client", "sig"} {
		if required[field] == "" {
			reasons = append(reasons, "missing required field: "+field)
		}
	}
	if j.Timestamp == 0 {
		reasons = append(reasons, "missing required field: timestamp")
	}
	if j.Payment.Amount == "" {
		reasons = append(reasons, "payment.amount is required")
	}

	return len(reasons) == 0, reasons
}

// ValidateEpoch checks an epoch document, including the additional fields
// required once status is "sealed".
func ValidateEpoch(e *model.Epoch) (bool, []string) {
	var reasons []string

	if e.Type != "epoch" {
		reasons = append(reasons, "type must be 'epoch'")
	}
	if e.Status != "active" && e.Status != "sealed" {
		reasons = append(reasons, "status must be 'active' or 'sealed'")
	}

	required := map[string]string{
		"epoch_id":   e.EpochID,
		"name":       e.Name,
		"controller": e.Controller,
		"sig":        e.Sig,
	}
	for _, field := range []string{"epoch_id", "name", "controller", "sig"} {
		if required[field] == "" {
			reasons = append(reasons, "missing required field: "+field)
		}
	}
	if e.StartedAt == 0 {
		reasons = append(reasons, "missing required field: started_at")
	}
	if e.Timestamp == 0 {
		reasons = append(reasons, "missing required field: timestamp")
	}

	if e.Status == "sealed" {
		if e.EndedAt == nil {
			reasons = append(reasons, "sealed epoch missing: ended_at")
		}
		if e.MerkleRoot == nil || *e.MerkleRoot == "" {
			reasons = append(reasons, "sealed epoch missing: merkle_root")
		}
		if e.Settlements == nil {
			reasons = append(reasons, "sealed epoch missing: settlements")
		}
	}

	return len(reasons) == 0, reasons
}
