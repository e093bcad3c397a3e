package config

import (
	"testing"

	"herdline/internal/roles"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("default")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Deployment.Name != "default" {
		t.Fatalf("deployment name %q", cfg.Deployment.Name)
	}
}

func TestValidRejection(t *testing.T) {
	cfg := Default("default")
	if !cfg.ValidRejection("quality", "bruising") {
		t.Fatalf("expected quality/bruising in catalog")
	}
	if cfg.ValidRejection("quality", "because") {
		t.Fatalf("accepted free-form reason")
	}
	if cfg.ValidRejection("vibes", "bruising") {
		t.Fatalf("accepted unknown category")
	}
}

func TestOperationAllowed(t *testing.T) {
	cfg := Default("default")
	if !cfg.OperationAllowed(OpReceive, roles.Worker) {
		t.Fatalf("worker should receive")
	}
	if cfg.OperationAllowed(OpResolveAppeal, roles.Worker) {
		t.Fatalf("worker should not resolve appeals")
	}
	if !cfg.OperationAllowed(OpReject, roles.QualityControl) {
		t.Fatalf("quality control should reject")
	}
}

func TestValidateRequiresCatalogAndPolicy(t *testing.T) {
	cfg := Default("default")
	cfg.Rejections.Catalog = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("empty catalog accepted")
	}

	cfg = Default("default")
	cfg.Policy.Operations[OpReject] = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("missing reject policy accepted")
	}

	cfg = Default("default")
	cfg.Policy.Operations[OpReceive] = []string{"janitor"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown member role accepted")
	}
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	if _, err := FromYAML([]byte("deployment:\n  name: x\n")); err == nil {
		t.Fatalf("config without catalog accepted")
	}
	if _, err := FromYAML([]byte("not: [valid")); err == nil {
		t.Fatalf("broken yaml accepted")
	}
}
