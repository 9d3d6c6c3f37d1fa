package indexer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/ewbmediator/pkg/config"
	"github.com/cognicore/ewbmediator/pkg/engine"
	"github.com/cognicore/ewbmediator/pkg/engine/enginetest"
	"github.com/cognicore/ewbmediator/pkg/model"
	"github.com/cognicore/ewbmediator/pkg/model/sparse"
	"github.com/cognicore/ewbmediator/pkg/registry"
)

// fakeTrainer is a model.TrainerFamily returning a fixed, tiny set of
// artifacts without touching TMmodel/*.npz on disk, so these tests
// exercise the indexer's orchestration rather than the mallet reader.
type fakeTrainer struct {
	artifacts model.Artifacts
}

func (f fakeTrainer) Load(modelDir string, cfg model.TrainConfig) (model.Artifacts, error) {
	a := f.artifacts
	a.CorpusName = cfg.CorpusStem()
	return a, nil
}

func threeTopicArtifacts() model.Artifacts {
	docTopic := sparse.New([][]float64{
		{0.2, 0.3, 0.5},
		{0.05, 0.05, 0.9},
		{0.5, 0.0, 0.5},
	})
	topicWord := sparse.New([][]float64{
		{0.5, 0.5},
		{1.0, 0.0},
		{0.25, 0.75},
	})
	return model.Artifacts{
		DocTopic:  docTopic,
		TopicWord: topicWord,
		DocIDs:    []string{"d1", "d2", "d3"},
		Vocab:     []string{"cat", "dog"},
	}
}

func writeFixtureCorpus(t *testing.T, dir, stem string) string {
	t.Helper()
	dataPath := filepath.Join(dir, stem+".csv")
	csvContent := "doc_id,headline,published,lemma\n" +
		"d1,First,2021-01-01 00:00:00,cat dog\n" +
		"d2,Second,2021-01-02 00:00:00,dog dog\n" +
		"d3,Third,2021-01-03 00:00:00,cat cat\n"
	if err := os.WriteFile(dataPath, []byte(csvContent), 0o644); err != nil {
		t.Fatal(err)
	}
	manifestPath := filepath.Join(dir, stem+".json")
	manifest := `{"Dtsets":[{"parquet":"` + stem + `.csv","idfld":"doc_id","lemmasfld":["lemma"]}]}`
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return manifestPath
}

func writeFixtureModel(t *testing.T, dir, modelStem, corpusStem, trainer string) string {
	t.Helper()
	modelDir := filepath.Join(dir, modelStem)
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := map[string]string{"TrDtSet": corpusStem + ".json", "trainer": trainer}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "trainconfig.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	return modelDir
}

func newTestIndexer(t *testing.T, corpusStem string) (*Indexer, *enginetest.Server) {
	t.Helper()
	srv := enginetest.New()
	t.Cleanup(srv.Close)
	client := engine.New(engine.Config{BaseURL: srv.URL()})
	reg, err := registry.New(client, "Corpora")
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	cfg := config.Config{
		Fields: map[string]config.CorpusFields{
			corpusStem: {TitleField: "headline", DateField: "published"},
		},
	}
	loader := model.NewLoader(1000, 1, map[string]model.TrainerFamily{
		"faketrainer": fakeTrainer{artifacts: threeTopicArtifacts()},
	})
	ix := New(Options{Engine: client, Registry: reg, Config: cfg, Loader: loader, BatchSize: 2})
	return ix, srv
}

func TestIndexCorpusRegistersFieldsAndDocuments(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	manifestPath := writeFixtureCorpus(t, dir, "cordis")

	ix, srv := newTestIndexer(t, "cordis")
	if err := ix.IndexCorpus(ctx, manifestPath); err != nil {
		t.Fatalf("IndexCorpus: %v", err)
	}

	docs := srv.Docs("cordis")
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents indexed, got %d", len(docs))
	}

	entry, err := ix.registry.Lookup(ctx, "cordis")
	if err != nil {
		t.Fatalf("registry.Lookup: %v", err)
	}
	if entry.CorpusName != "cordis" {
		t.Errorf("CorpusName = %q", entry.CorpusName)
	}
	if len(entry.Fields) == 0 {
		t.Error("expected a nonempty field list registered")
	}
}

// TestSchemaEvolution: after IndexCorpus then IndexModel, the corpus
// schema must contain both doctpc_<model> and sim_<model>, and the
// registry's models list must contain the model name exactly once.
func TestSchemaEvolution(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	manifestPath := writeFixtureCorpus(t, dir, "cordis")
	modelDir := writeFixtureModel(t, dir, "mallet-25", "cordis", "faketrainer")

	ix, srv := newTestIndexer(t, "cordis")
	if err := ix.IndexCorpus(ctx, manifestPath); err != nil {
		t.Fatalf("IndexCorpus: %v", err)
	}
	if err := ix.IndexModel(ctx, modelDir); err != nil {
		t.Fatalf("IndexModel: %v", err)
	}

	entry, err := ix.registry.Lookup(ctx, "cordis")
	if err != nil {
		t.Fatalf("registry.Lookup: %v", err)
	}
	count := 0
	for _, m := range entry.Models {
		if m == "mallet-25" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected mallet-25 to appear exactly once in Models, got %v", entry.Models)
	}

	want := map[string]bool{"doctpc_mallet-25": true, "sim_mallet-25": true}
	for f := range want {
		found := false
		for _, ef := range entry.Fields {
			if ef == f {
				found = true
			}
		}
		if !found {
			t.Errorf("expected field %q in registry entry, got %v", f, entry.Fields)
		}
	}

	if docs := srv.Docs("cordis"); len(docs) > 0 {
		if _, ok := docs[0]["doctpc_mallet-25"]; !ok {
			t.Error("expected doctpc_mallet-25 payload set on corpus documents")
		}
	}
	if docs := srv.Docs("mallet-25"); len(docs) != 3 {
		t.Errorf("expected 3 topic documents in the model collection, got %d", len(docs))
	}
}

// TestDeleteOrdering: deleting a corpus removes the
// model collections it names before removing the registry entry, and a
// subsequent lookup reports the corpus as gone.
func TestDeleteOrdering(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	manifestPath := writeFixtureCorpus(t, dir, "cordis")
	modelDir := writeFixtureModel(t, dir, "mallet-25", "cordis", "faketrainer")

	ix, srv := newTestIndexer(t, "cordis")
	if err := ix.IndexCorpus(ctx, manifestPath); err != nil {
		t.Fatalf("IndexCorpus: %v", err)
	}
	if err := ix.IndexModel(ctx, modelDir); err != nil {
		t.Fatalf("IndexModel: %v", err)
	}

	if err := ix.DeleteCorpus(ctx, manifestPath); err != nil {
		t.Fatalf("DeleteCorpus: %v", err)
	}

	if docs := srv.Docs("cordis"); docs != nil {
		t.Errorf("expected corpus collection gone, found %d docs", len(docs))
	}
	if docs := srv.Docs("mallet-25"); docs != nil {
		t.Errorf("expected model collection gone, found %d docs", len(docs))
	}
	if _, err := ix.registry.Lookup(ctx, "cordis"); err == nil {
		t.Error("expected the registry entry to be gone after DeleteCorpus")
	}
}

func TestDeleteModelRemovesFieldsAndRegistryEntry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	manifestPath := writeFixtureCorpus(t, dir, "cordis")
	modelDir := writeFixtureModel(t, dir, "mallet-25", "cordis", "faketrainer")

	ix, srv := newTestIndexer(t, "cordis")
	if err := ix.IndexCorpus(ctx, manifestPath); err != nil {
		t.Fatalf("IndexCorpus: %v", err)
	}
	if err := ix.IndexModel(ctx, modelDir); err != nil {
		t.Fatalf("IndexModel: %v", err)
	}

	if err := ix.DeleteModel(ctx, modelDir); err != nil {
		t.Fatalf("DeleteModel: %v", err)
	}

	entry, err := ix.registry.Lookup(ctx, "cordis")
	if err != nil {
		t.Fatalf("registry.Lookup: %v", err)
	}
	for _, m := range entry.Models {
		if m == "mallet-25" {
			t.Error("expected mallet-25 removed from registry Models")
		}
	}
	if docs := srv.Docs("mallet-25"); docs != nil {
		t.Errorf("expected model collection removed, found %d docs", len(docs))
	}
	if docs := srv.Docs("cordis"); len(docs) > 0 {
		if v, ok := docs[0]["doctpc_mallet-25"]; ok {
			if items, _ := v.([]any); len(items) != 0 {
				t.Errorf("expected doctpc_mallet-25 cleared from corpus documents, got %v", v)
			}
		}
	}
}
