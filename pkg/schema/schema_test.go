package schema

import (
	"testing"

	"github.com/swarmos/merlin/pkg/model"
)

func validProof() *model.Proof {
	return &model.Proof{
		Type:      "proof",
		Version:   "1.0.0",
		ProofID:   "proof-1",
		JobCID:    "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		OutputCID: "QmTzQ1N1pJgcyxHrYjUyYAHuXxy4uJpVfhQVo8K9FjQn5Z",
		Metrics:   model.Metrics{InferenceSeconds: 1.2, Confidence: 0.9},
		Provider:  "alice.eth",
		Timestamp: 1700000000,
		ProofHash: "0xabc123",
		Sig:       "0xdeadbeef",
	}
}

func TestValidateProofAccepts(t *testing.T) {
	ok, reasons := ValidateProof(validProof())
	if !ok {
		t.Fatalf("expected valid proof to pass, got reasons: %v", reasons)
	}
}

func TestValidateProofRejectsMissingSig(t *testing.T) {
	p := validProof()
	p.Sig = ""
	ok, reasons := ValidateProof(p)
	if ok {
		t.Fatal("expected proof without sig to be rejected")
	}
	if len(reasons) == 0 {
		t.Fatal("expected at least one reason")
	}
}

func TestValidateProofRejectsOutOfRangeConfidence(t *testing.T) {
	p := validProof()
	p.Metrics.Confidence = 1.5
	ok, _ := ValidateProof(p)
	if ok {
		t.Fatal("expected confidence > 1 to be rejected")
	}
}

func TestValidateProofRejectsBadProviderSuffix(t *testing.T) {
	p := validProof()
	p.Provider = "alice"
	ok, _ := ValidateProof(p)
	if ok {
		t.Fatal("expected provider without .eth suffix to be rejected")
	}
}

func TestValidateProofRejectsMissingTimestamp(t *testing.T) {
	p := validProof()
	p.Timestamp = 0
	ok, reasons := ValidateProof(p)
	if ok {
		t.Fatal("expected proof without timestamp to be rejected")
	}
	if len(reasons) == 0 {
		t.Fatal("expected at least one reason")
	}
}

func TestValidateProofRejectsBadCID(t *testing.T) {
	p := validProof()
	p.JobCID = "not-a-cid"
	ok, _ := ValidateProof(p)
	if ok {
		t.Fatal("expected malformed job_cid to be rejected")
	}
}

func TestValidateJob(t *testing.T) {
	j := &model.Job{
		Type:      "job",
		JobID:     "job-1",
		Model:     "llama",
		InputCID:  "QmInput",
		Client:    "bob.eth",
		Timestamp: 1700000000,
		Sig:       "0xsig",
		Payment:   model.Payment{Amount: "1.00"},
	}
	if ok, reasons := ValidateJob(j); !ok {
		t.Fatalf("expected valid job to pass, got reasons: %v", reasons)
	}

	j.Payment.Amount = ""
	if ok, _ := ValidateJob(j); ok {
		t.Fatal("expected job without payment.amount to be rejected")
	}
}

func TestValidateEpoch(t *testing.T) {
	e := &model.Epoch{
		Type:       "epoch",
		Status:     "active",
		EpochID:    "epoch-0001",
		Name:       "Bravo",
		StartedAt:  1700000000,
		Timestamp:  1700000000,
		Controller: "merlin.swarmos.eth",
		Sig:        "0xsig",
	}
	if ok, reasons := ValidateEpoch(e); !ok {
		t.Fatalf("expected valid active epoch to pass, got reasons: %v", reasons)
	}

	e.Status = "sealed"
	if ok, reasons := ValidateEpoch(e); ok {
		t.Fatalf("expected sealed epoch missing settlement fields to fail, got pass with reasons: %v", reasons)
	}
}
