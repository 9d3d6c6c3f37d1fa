package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediator.yaml")
	content := "engine_url: http://localhost:8983/solr\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RegistryCollection != "Corpora" {
		t.Errorf("RegistryCollection = %q, want Corpora", cfg.RegistryCollection)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.PayloadScale != 1000 {
		t.Errorf("PayloadScale = %d, want 1000", cfg.PayloadScale)
	}
}

func TestLoadRequiresEngineURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediator.yaml")
	if err := os.WriteFile(path, []byte("batch_size: 50\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected an error when engine_url is missing")
	}
}

func TestLoadEnvOverridesBatchSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mediator.yaml")
	content := "engine_url: http://localhost:8983/solr\nbatch_size: 50\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("EWBMEDIATOR_BATCH_SIZE", "250")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want 250 from env override", cfg.BatchSize)
	}
}

func TestFieldsForCaseInsensitive(t *testing.T) {
	cfg := Config{Fields: map[string]CorpusFields{
		"cordis": {TitleField: "headline", DateField: "published"},
	}}
	fc := cfg.FieldsFor("Cordis")
	if fc.TitleField != "headline" || fc.DateField != "published" {
		t.Errorf("FieldsFor(Cordis) = %+v", fc)
	}
}
