// Package indexer orchestrates the ingestion pipeline: it creates the
// engine collections for a corpus or model, evolves schemas, batches
// document updates, and keeps the registry collection's bookkeeping in
// step with what it actually wrote to the engine. One small struct
// holding its dependencies, one method per public operation, private
// helpers per step.
package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cognicore/ewbmediator/pkg/config"
	"github.com/cognicore/ewbmediator/pkg/corpus"
	"github.com/cognicore/ewbmediator/pkg/engine"
	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
	"github.com/cognicore/ewbmediator/pkg/model"
	"github.com/cognicore/ewbmediator/pkg/registry"
)

const (
	fieldTypeWeightedPayload = "weighted_payload"
	fieldTypeFloatVector     = "float_vector"
)

// Options configures an Indexer.
type Options struct {
	Engine    *engine.Client
	Registry  *registry.Registry
	Config    config.Config
	Loader    *model.Loader
	BatchSize int

	// SerializeByName turns on the optional per-name mutex hardening
	// (off by default; the ordering of concurrent same-name calls is
	// explicitly not guaranteed by this layer without it).
	SerializeByName bool
}

// Indexer implements indexCorpus/deleteCorpus/indexModel/deleteModel.
type Indexer struct {
	engine    *engine.Client
	registry  *registry.Registry
	cfg       config.Config
	loader    *model.Loader
	batchSize int
	locker    *Locker
}

// New creates an Indexer from opts.
func New(opts Options) *Indexer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	var locker *Locker
	if opts.SerializeByName {
		locker = NewLocker()
	}
	return &Indexer{
		engine:    opts.Engine,
		registry:  opts.Registry,
		cfg:       opts.Config,
		loader:    opts.Loader,
		batchSize: batchSize,
		locker:    locker,
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.ToLower(strings.TrimSuffix(base, ext))
}

func (ix *Indexer) lock(name string) func() {
	if ix.locker == nil {
		return func() {}
	}
	return ix.locker.Lock(name)
}

// IndexCorpus ingests the logical corpus described by manifestPath:
// derive the corpus name, create its collection, register it, and
// stream its documents into the collection in batches.
func (ix *Indexer) IndexCorpus(ctx context.Context, manifestPath string) error {
	corpusName := stem(manifestPath)
	defer ix.lock(corpusName)()

	resp, err := ix.engine.CreateCollection(ctx, corpusName, "", 1, 1)
	if err != nil {
		return err
	}
	if resp.Status == 409 {
		return fmt.Errorf("%w: corpus collection %q already exists", mediatorerr.ErrAlreadyExists, corpusName)
	}
	if resp.Status != 200 {
		return fmt.Errorf("%w: creating corpus collection %q: %s", mediatorerr.ErrEngineTransient, corpusName, resp.Message)
	}

	fields, err := ix.cfg.RequireFields(corpusName)
	if err != nil {
		return err
	}
	cur, err := corpus.Open(manifestPath, fields)
	if err != nil {
		return err
	}
	defer cur.Close()

	// The registry record goes in before any corpus document: a failure
	// mid-stream must leave an entry naming what needs cleaning up.
	columns := make([]string, 0, len(cur.Columns()))
	for _, name := range cur.Columns() {
		if !ix.cfg.IsDenied(name) {
			columns = append(columns, name)
		}
	}
	if _, err := ix.registry.Create(ctx, corpusName, columns); err != nil {
		return err
	}

	var batch []map[string]any
	for cur.Next() {
		doc, err := cur.Scan()
		if err != nil {
			return err
		}
		for name := range doc {
			if ix.cfg.IsDenied(name) {
				delete(doc, name)
			}
		}
		batch = append(batch, doc)
		if len(batch) >= ix.batchSize {
			if err := ix.flush(ctx, corpusName, &batch); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return ix.flush(ctx, corpusName, &batch)
}

// DeleteCorpus deletes the corpus collection, every model collection
// registered against it, and finally its registry entry. Engine
// collections are deleted before the registry entry so a mid-operation
// failure leaves a reconcilable state: the registry still names what
// must be cleaned up.
func (ix *Indexer) DeleteCorpus(ctx context.Context, manifestPath string) error {
	corpusName := stem(manifestPath)
	defer ix.lock(corpusName)()

	if _, err := ix.engine.DeleteCollection(ctx, corpusName); err != nil {
		return err
	}

	entry, err := ix.registry.Lookup(ctx, corpusName)
	if err != nil {
		return err
	}
	for _, modelName := range append([]string(nil), entry.Models...) {
		if _, err := ix.engine.DeleteCollection(ctx, modelName); err != nil {
			return err
		}
		if err := ix.registry.RemoveModel(ctx, corpusName, modelName, nil); err != nil {
			return err
		}
	}

	return ix.registry.Delete(ctx, corpusName)
}

// IndexModel ingests the trained model at modelPath: derive the model
// name, create its collection, append it to the corpus's registry
// entry, evolve the corpus collection's schema, and batch-update both
// the corpus documents (doctpc_M) and the model collection (per-topic
// records).
func (ix *Indexer) IndexModel(ctx context.Context, modelPath string) error {
	modelName := stem(modelPath)
	defer ix.lock(modelName)()

	resp, err := ix.engine.CreateCollection(ctx, modelName, "", 1, 1)
	if err != nil {
		return err
	}
	if resp.Status == 409 {
		return fmt.Errorf("%w: model collection %q already exists", mediatorerr.ErrAlreadyExists, modelName)
	}
	if resp.Status != 200 {
		return fmt.Errorf("%w: creating model collection %q: %s", mediatorerr.ErrEngineTransient, modelName, resp.Message)
	}

	artifacts, _, err := ix.loader.Load(modelPath)
	if err != nil {
		return err
	}
	corpusName := artifacts.CorpusName
	if _, err := ix.registry.Lookup(ctx, corpusName); err != nil {
		return fmt.Errorf("%w: model %q trained on unregistered corpus %q", mediatorerr.ErrInvariantViolation, modelName, corpusName)
	}

	doctpcField := "doctpc_" + modelName
	simField := "sim_" + modelName

	if err := ix.registry.AddModel(ctx, corpusName, modelName, []string{doctpcField, simField}); err != nil {
		return err
	}

	if resp, err := ix.engine.AddField(ctx, corpusName, doctpcField, fieldTypeWeightedPayload); err != nil {
		return err
	} else if resp.Status != 200 && resp.Status != 409 {
		return fmt.Errorf("%w: adding field %q to %q: %s", mediatorerr.ErrConfig, doctpcField, corpusName, resp.Message)
	}
	if resp, err := ix.engine.AddField(ctx, corpusName, simField, fieldTypeFloatVector); err != nil {
		return err
	} else if resp.Status != 200 && resp.Status != 409 {
		return fmt.Errorf("%w: adding field %q to %q: %s", mediatorerr.ErrConfig, simField, corpusName, resp.Message)
	}

	docTopics, err := ix.loader.EncodeDocTopics(artifacts)
	if err != nil {
		return err
	}
	if err := ix.batchUpdateDocTopics(ctx, corpusName, doctpcField, docTopics); err != nil {
		return err
	}

	topics, err := ix.loader.EncodeTopics(artifacts)
	if err != nil {
		return err
	}
	return ix.batchUpdateTopics(ctx, modelName, topics)
}

func (ix *Indexer) batchUpdateDocTopics(ctx context.Context, corpusName, doctpcField string, records []model.DocTopicRecord) error {
	var batch []map[string]any
	for _, rec := range records {
		batch = append(batch, map[string]any{
			"id":        rec.ID,
			doctpcField: map[string]any{"set": rec.Payload},
		})
		if len(batch) >= ix.batchSize {
			if err := ix.flush(ctx, corpusName, &batch); err != nil {
				return err
			}
		}
	}
	return ix.flush(ctx, corpusName, &batch)
}

func (ix *Indexer) batchUpdateTopics(ctx context.Context, modelName string, records []model.TopicRecord) error {
	var batch []map[string]any
	for _, rec := range records {
		batch = append(batch, map[string]any{
			"id":               rec.ID,
			"betas":            rec.Betas,
			"alphas":           rec.Alphas,
			"topic_entropy":    rec.TopicEntropy,
			"topic_coherence":  rec.TopicCoherence,
			"ndocs_active":     rec.NDocsActive,
			"tpc_descriptions": rec.TpcDescriptions,
			"tpc_labels":       rec.TpcLabels,
			"coords":           rec.Coords,
			"vocab":            rec.Vocab,
		})
		if len(batch) >= ix.batchSize {
			if err := ix.flush(ctx, modelName, &batch); err != nil {
				return err
			}
		}
	}
	return ix.flush(ctx, modelName, &batch)
}

func (ix *Indexer) flush(ctx context.Context, collection string, batch *[]map[string]any) error {
	if len(*batch) == 0 {
		return nil
	}
	resp, err := ix.engine.BatchUpdate(ctx, collection, *batch)
	if err != nil {
		return err
	}
	if resp.Status != 200 {
		return fmt.Errorf("%w: batch update on %q: %s", mediatorerr.ErrEngineTransient, collection, resp.Message)
	}
	*batch = (*batch)[:0]
	return nil
}

// DeleteModel mirrors IndexModel: it clears the doctpc_M field on
// every corpus document (atomic {set: []}), drops doctpc_M/sim_M from the
// corpus schema, removes the model from the registry, and finally
// deletes the model collection.
func (ix *Indexer) DeleteModel(ctx context.Context, modelPath string) error {
	modelName := stem(modelPath)
	defer ix.lock(modelName)()

	corpusName, err := ix.registry.FindModelCorpus(ctx, modelName)
	if err != nil {
		return err
	}

	doctpcField := "doctpc_" + modelName
	simField := "sim_" + modelName

	if err := ix.clearDoctpcField(ctx, corpusName, doctpcField); err != nil {
		return err
	}
	if resp, err := ix.engine.RemoveField(ctx, corpusName, doctpcField); err != nil {
		return err
	} else if resp.Status != 200 && resp.Status != 404 {
		return fmt.Errorf("%w: removing field %q from %q: %s", mediatorerr.ErrConfig, doctpcField, corpusName, resp.Message)
	}
	if resp, err := ix.engine.RemoveField(ctx, corpusName, simField); err != nil {
		return err
	} else if resp.Status != 200 && resp.Status != 404 {
		return fmt.Errorf("%w: removing field %q from %q: %s", mediatorerr.ErrConfig, simField, corpusName, resp.Message)
	}

	if err := ix.registry.RemoveModel(ctx, corpusName, modelName, []string{doctpcField, simField}); err != nil {
		return err
	}

	if _, err := ix.engine.DeleteCollection(ctx, modelName); err != nil {
		return err
	}
	return nil
}

// clearDoctpcField sets doctpcField to an empty list ({set: []}) on
// every document of corpusName before the field itself is dropped, so
// no document is left referencing a schema field that no longer exists.
// An atomic remove would not do: remove deletes only the values it
// lists, so an empty remove list clears nothing.
func (ix *Indexer) clearDoctpcField(ctx context.Context, corpusName, doctpcField string) error {
	resp, err := ix.engine.Select(ctx, corpusName, engine.SelectParams{Q: "*:*", FL: "id", Rows: "100000"})
	if err != nil {
		return err
	}

	var batch []map[string]any
	for _, doc := range resp.Docs {
		id, _ := doc["id"].(string)
		if id == "" {
			continue
		}
		batch = append(batch, map[string]any{
			"id":        id,
			doctpcField: map[string]any{"set": []string{}},
		})
		if len(batch) >= ix.batchSize {
			if err := ix.flush(ctx, corpusName, &batch); err != nil {
				return err
			}
		}
	}
	return ix.flush(ctx, corpusName, &batch)
}
