package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MERLIN_PRIVATE_KEY", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.IPFSAPI != "http://localhost:5001" {
		t.Errorf("IPFSAPI default = %q, want http://localhost:5001", cfg.IPFSAPI)
	}
	if cfg.ProviderShare != 0.75 {
		t.Errorf("ProviderShare default = %v, want 0.75", cfg.ProviderShare)
	}
	if cfg.EpochDurationSeconds != 3600 {
		t.Errorf("EpochDurationSeconds default = %v, want 3600", cfg.EpochDurationSeconds)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MERLIN_PRIVATE_KEY", "abc123")
	t.Setenv("EPOCH_DURATION_SECONDS", "120")
	t.Setenv("PROVIDER_SHARE", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PrivateKey != "abc123" {
		t.Errorf("PrivateKey = %q, want abc123", cfg.PrivateKey)
	}
	if cfg.EpochDurationSeconds != 120 {
		t.Errorf("EpochDurationSeconds = %v, want 120", cfg.EpochDurationSeconds)
	}
	if cfg.ProviderShare != 0.5 {
		t.Errorf("ProviderShare = %v, want 0.5", cfg.ProviderShare)
	}
}

func TestValidateRequiresPrivateKey(t *testing.T) {
	cfg := &Config{
		IPFSAPI:              "http://localhost:5001",
		EpochDurationSeconds: 3600,
		PollIntervalSeconds:  10,
		ProviderShare:        0.75,
		NetworkOpsShare:      0.25,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing private key")
	}

	cfg.PrivateKey = "abc123"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadShares(t *testing.T) {
	cfg := &Config{
		PrivateKey:           "abc123",
		IPFSAPI:              "http://localhost:5001",
		EpochDurationSeconds: 3600,
		PollIntervalSeconds:  10,
		ProviderShare:        1.5,
		NetworkOpsShare:      0.25,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range provider share")
	}
}
