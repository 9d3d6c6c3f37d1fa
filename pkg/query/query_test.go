package query

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/ewbmediator/pkg/engine"
	"github.com/cognicore/ewbmediator/pkg/engine/enginetest"
	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
	"github.com/cognicore/ewbmediator/pkg/registry"
)

// fixture wires a fake engine, a registry, and an Executor, and seeds one
// corpus collection ("cordis") with three documents carrying a doctpc_m1
// weighted payload plus a model collection ("m1") with two topics.
type fixture struct {
	srv *enginetest.Server
	eng *engine.Client
	reg *registry.Registry
	ex  *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := enginetest.New()
	t.Cleanup(srv.Close)
	eng := engine.New(engine.Config{BaseURL: srv.URL()})
	reg, err := registry.New(eng, "Corpora")
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	ex := New(eng, reg, 1000)
	return &fixture{srv: srv, eng: eng, reg: reg, ex: ex}
}

func (f *fixture) mustCreate(t *testing.T, collection string) {
	t.Helper()
	ctx := context.Background()
	resp, err := f.eng.CreateCollection(ctx, collection, "", 1, 1)
	if err != nil || resp.Status != 200 {
		t.Fatalf("CreateCollection(%s): status=%d err=%v", collection, resp.Status, err)
	}
}

func (f *fixture) mustUpdate(t *testing.T, collection string, docs []map[string]any) {
	t.Helper()
	resp, err := f.eng.BatchUpdate(context.Background(), collection, docs)
	if err != nil || resp.Status != 200 {
		t.Fatalf("BatchUpdate(%s): status=%d err=%v", collection, resp.Status, err)
	}
}

func (f *fixture) seedCorpus(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	f.mustCreate(t, "cordis")
	if _, err := f.reg.Create(ctx, "cordis", []string{"id", "title", "all_lemmas"}); err != nil {
		t.Fatalf("registry.Create: %v", err)
	}
	if err := f.reg.AddModel(ctx, "cordis", "m1", []string{"doctpc_m1", "sim_m1"}); err != nil {
		t.Fatalf("registry.AddModel: %v", err)
	}
	f.mustUpdate(t, "cordis", []map[string]any{
		{"id": "d1", "title": "vaccine trial results", "all_lemmas": "vaccine trial result", "doctpc_m1": "t0|900 t1|100"},
		{"id": "d2", "title": "climate policy review", "all_lemmas": "climate policy review", "doctpc_m1": "t0|200 t1|800"},
		{"id": "d3", "title": "another vaccine study", "all_lemmas": "another vaccine study", "doctpc_m1": "t0|600 t1|400"},
	})
}

func (f *fixture) seedModel(t *testing.T) {
	t.Helper()
	f.mustCreate(t, "m1")
	f.mustUpdate(t, "m1", []map[string]any{
		{"id": "t0", "betas": "w1|700 w2|300", "tpc_labels": "vaccines", "coords": []float64{0.1, 0.9}},
		{"id": "t1", "betas": "w1|100 w2|900", "tpc_labels": "climate", "coords": []float64{0.8, 0.2}},
	})
}

func TestDocTopicReturnsPayload(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)

	payload, err := f.ex.DocTopic(context.Background(), "cordis", "d1", "m1")
	if err != nil {
		t.Fatalf("DocTopic: %v", err)
	}
	if payload != "t0|900 t1|100" {
		t.Errorf("payload = %q", payload)
	}
}

func TestDocTopicRejectsUnregisteredModel(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)

	if _, err := f.ex.DocTopic(context.Background(), "cordis", "d1", "ghost-model"); !errors.Is(err, mediatorerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDocsAboveThresholdFiltersByPayloadWeight(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)

	res, err := f.ex.DocsAboveThreshold(context.Background(), "cordis", "m1", 0, 500, Params{})
	if err != nil {
		t.Fatalf("DocsAboveThreshold: %v", err)
	}
	if res.NumFound != 2 {
		t.Fatalf("NumFound = %d, want 2 (d1 and d3)", res.NumFound)
	}
	ids := map[string]bool{}
	for _, d := range res.Docs {
		id, _ := d["id"].(string)
		ids[id] = true
	}
	if !ids["d1"] || !ids["d3"] {
		t.Errorf("docs = %v, want d1 and d3", res.Docs)
	}
}

func TestDocsAboveThresholdRejectsMissingDoctpcField(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)

	if _, err := f.ex.DocsAboveThreshold(context.Background(), "cordis", "nonexistent-model", 0, 500, Params{}); !errors.Is(err, mediatorerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSimilarToDocNormalizesScores(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)

	res, err := f.ex.SimilarToDoc(context.Background(), "cordis", "m1", "d1", Params{})
	if err != nil {
		t.Fatalf("SimilarToDoc: %v", err)
	}
	if len(res.Docs) == 0 {
		t.Fatal("expected at least one result")
	}
	// d1's own payload dotted with itself: 900*900 + 100*100 = 820000,
	// scaled by 100/1000^2 = 82.
	first := res.Docs[0]
	if id, _ := first["id"].(string); id != "d1" {
		t.Errorf("top match = %q, want d1 (self-similarity is highest)", id)
	}
	score, ok := first["score"].(float64)
	if !ok {
		t.Fatalf("score missing or not a float64: %v", first["score"])
	}
	if score < 81.9 || score > 82.1 {
		t.Errorf("score = %v, want ~82", score)
	}
}

func TestSearchTitleMatchesSubstring(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)

	res, err := f.ex.SearchTitle(context.Background(), "cordis", "vaccine", Params{})
	if err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	if res.NumFound != 2 {
		t.Errorf("NumFound = %d, want 2", res.NumFound)
	}
}

func TestPaginationDefaultsRowsToFullCount(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)

	res, err := f.ex.SearchTitle(context.Background(), "cordis", "", Params{})
	if err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	if len(res.Docs) != 3 {
		t.Errorf("len(Docs) = %d, want 3 when rows is left unsupplied", len(res.Docs))
	}
}

func TestResultsFilePathPersistsDocs(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")
	_, err := f.ex.SearchTitle(context.Background(), "cordis", "vaccine", Params{ResultsFilePath: path})
	if err != nil {
		t.Fatalf("SearchTitle: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("persisted %d docs, want 2", len(docs))
	}
}

func TestTopicLabelsListsEveryTopic(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)
	f.seedModel(t)

	res, err := f.ex.TopicLabels(context.Background(), "m1", Params{})
	if err != nil {
		t.Fatalf("TopicLabels: %v", err)
	}
	if res.NumFound != 2 {
		t.Errorf("NumFound = %d, want 2", res.NumFound)
	}
}

func TestTopicInfoReturnsFullPerTopicRecords(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)
	f.seedModel(t)

	res, err := f.ex.TopicInfo(context.Background(), "m1", Params{})
	if err != nil {
		t.Fatalf("TopicInfo: %v", err)
	}
	if res.NumFound != 2 {
		t.Fatalf("NumFound = %d, want 2", res.NumFound)
	}
	for _, d := range res.Docs {
		if _, ok := d["betas"]; !ok {
			t.Errorf("doc %v missing betas", d["id"])
		}
		coords, ok := d["coords"].([]any)
		if !ok || len(coords) != 2 {
			t.Errorf("doc %v coords = %v, want a pair", d["id"], d["coords"])
		}
	}
}

func TestCorrelatedTopicsUsesQ11Then12(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)
	f.seedModel(t)

	res, err := f.ex.CorrelatedTopics(context.Background(), "m1", 0, Params{})
	if err != nil {
		t.Fatalf("CorrelatedTopics: %v", err)
	}
	if len(res.Docs) == 0 {
		t.Fatal("expected results")
	}
	top, _ := res.Docs[0]["id"].(string)
	if top != "t0" {
		t.Errorf("top correlated topic = %q, want t0 (self-similarity is highest)", top)
	}
}

func TestLemmasReturnsAllLemmasField(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)

	lemmas, err := f.ex.Lemmas(context.Background(), "cordis", "d2")
	if err != nil {
		t.Fatalf("Lemmas: %v", err)
	}
	if lemmas != "climate policy review" {
		t.Errorf("lemmas = %q", lemmas)
	}
}

func TestMetadataExcludesDoctpcFields(t *testing.T) {
	f := newFixture(t)
	f.seedCorpus(t)

	meta, err := f.ex.Metadata(context.Background(), "cordis", "d1", nil)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if _, ok := meta["doctpc_m1"]; ok {
		t.Error("Metadata should not include doctpc_m1")
	}
	if meta["title"] != "vaccine trial results" {
		t.Errorf("title = %v", meta["title"])
	}
}
