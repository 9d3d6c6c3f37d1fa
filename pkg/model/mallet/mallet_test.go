package mallet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/ewbmediator/pkg/model"
	"github.com/cognicore/ewbmediator/pkg/model/sparse"
)

func writeMatrix(t *testing.T, path string, rows [][]float64) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := sparse.Encode(f, sparse.New(rows)); err != nil {
		t.Fatal(err)
	}
}

func TestLoadReadsArtifactsFromModelDir(t *testing.T) {
	dir := t.TempDir()
	tmDir := filepath.Join(dir, "TMmodel")
	if err := os.MkdirAll(tmDir, 0o755); err != nil {
		t.Fatal(err)
	}

	writeMatrix(t, filepath.Join(tmDir, "thetas.npz"), [][]float64{{1, 0}, {0, 1}})
	writeMatrix(t, filepath.Join(tmDir, "betas.npz"), [][]float64{{0.5, 0.5}})

	vocab, _ := json.Marshal(map[string]any{"vocab": []string{"cat", "dog"}})
	if err := os.WriteFile(filepath.Join(tmDir, "vocab.json"), vocab, 0o644); err != nil {
		t.Fatal(err)
	}

	corpusTxt := "d1 0 cat dog\nd2 0 dog dog\n"
	if err := os.WriteFile(filepath.Join(dir, "corpus.txt"), []byte(corpusTxt), 0o644); err != nil {
		t.Fatal(err)
	}

	fam := New()
	artifacts, err := fam.Load(dir, model.TrainConfig{TrDtSet: "/data/Cordis.json", Trainer: "mallet"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if artifacts.CorpusName != "cordis" {
		t.Errorf("CorpusName = %q, want cordis", artifacts.CorpusName)
	}
	if len(artifacts.DocIDs) != 2 || artifacts.DocIDs[0] != "d1" || artifacts.DocIDs[1] != "d2" {
		t.Errorf("DocIDs = %v", artifacts.DocIDs)
	}
	if artifacts.DocTopic.Rows != 2 {
		t.Errorf("DocTopic.Rows = %d, want 2", artifacts.DocTopic.Rows)
	}
	if len(artifacts.Vocab) != 2 {
		t.Errorf("Vocab = %v", artifacts.Vocab)
	}
}

func TestLoadRejectsRowCountMismatch(t *testing.T) {
	dir := t.TempDir()
	tmDir := filepath.Join(dir, "TMmodel")
	if err := os.MkdirAll(tmDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeMatrix(t, filepath.Join(tmDir, "thetas.npz"), [][]float64{{1}, {1}, {1}})
	writeMatrix(t, filepath.Join(tmDir, "betas.npz"), [][]float64{{1}})
	vocab, _ := json.Marshal(map[string]any{"vocab": []string{"cat"}})
	if err := os.WriteFile(filepath.Join(tmDir, "vocab.json"), vocab, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "corpus.txt"), []byte("d1 0 cat\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fam := New()
	if _, err := fam.Load(dir, model.TrainConfig{TrDtSet: "/data/x.json"}); err == nil {
		t.Error("expected an error for a doc-id / matrix row count mismatch")
	}
}
