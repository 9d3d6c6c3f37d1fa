// Package registry implements the fixed-name `Corpora` bookkeeping
// collection: one document per indexed logical corpus, holding its
// monotonic id, its field list, and the models trained against it. The
// indexer is the only writer; everything else only reads through this
// package.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cognicore/ewbmediator/pkg/engine"
	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
)

const fieldListCacheSize = 256

// Entry is one registry document.
type Entry struct {
	ID         int
	CorpusName string
	Fields     []string
	Models     []string
}

// Registry wraps an engine.Client to read and write registry entries in
// the collection named collectionName (created lazily on first use).
type Registry struct {
	client         *engine.Client
	collectionName string
	fieldsCache    *lru.Cache[string, []string]

	ensured bool
}

// New creates a Registry backed by client, storing entries in the
// collection named collectionName.
func New(client *engine.Client, collectionName string) (*Registry, error) {
	cache, err := lru.New[string, []string](fieldListCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: creating field-list cache: %v", mediatorerr.ErrConfig, err)
	}
	return &Registry{client: client, collectionName: collectionName, fieldsCache: cache}, nil
}

// Ensure creates the registry's collection the first time it's needed.
// Safe to call repeatedly, including across process restarts: only the
// in-process ensured flag, not engine state, is assumed true, so a 409
// from an already-existing collection is treated as success.
func (r *Registry) Ensure(ctx context.Context) error {
	if r.ensured {
		return nil
	}
	resp, err := r.client.CreateCollection(ctx, r.collectionName, "", 1, 1)
	if err != nil {
		return err
	}
	if resp.Status != 200 && resp.Status != 409 {
		return fmt.Errorf("%w: creating registry collection %s: %s", mediatorerr.ErrEngineTransient, r.collectionName, resp.Message)
	}
	r.ensured = true
	return nil
}

// nextID queries the registry for the highest assigned id (sort desc,
// rows=1) and returns id+1, or 1 if the registry is empty.
func (r *Registry) nextID(ctx context.Context) (int, error) {
	resp, err := r.client.Select(ctx, r.collectionName, engine.SelectParams{
		Q:    "*:*",
		Sort: "id desc",
		Rows: "1",
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Docs) == 0 {
		return 1, nil
	}
	id, err := intField(resp.Docs[0], "id")
	if err != nil {
		return 0, err
	}
	return id + 1, nil
}

// Create registers a newly indexed corpus and its initial field list,
// assigning it the next monotonic id. Registering an already-registered
// corpus name is an ErrAlreadyExists.
func (r *Registry) Create(ctx context.Context, corpusName string, fields []string) (Entry, error) {
	if err := r.Ensure(ctx); err != nil {
		return Entry{}, err
	}
	if _, err := r.Lookup(ctx, corpusName); err == nil {
		return Entry{}, fmt.Errorf("%w: corpus %q is already registered", mediatorerr.ErrAlreadyExists, corpusName)
	}

	id, err := r.nextID(ctx)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{ID: id, CorpusName: corpusName, Fields: fields, Models: nil}
	doc := map[string]any{
		"id":          id,
		"corpus_name": corpusName,
		"fields":      fields,
		"models":      []string{},
	}
	resp, err := r.client.BatchUpdate(ctx, r.collectionName, []map[string]any{doc})
	if err != nil {
		return Entry{}, err
	}
	if resp.Status != 200 {
		return Entry{}, fmt.Errorf("%w: registering corpus %q: %s", mediatorerr.ErrEngineTransient, corpusName, resp.Message)
	}
	r.fieldsCache.Add(corpusName, fields)
	return entry, nil
}

// Lookup returns the registry entry for corpusName, or ErrNotFound.
func (r *Registry) Lookup(ctx context.Context, corpusName string) (Entry, error) {
	resp, err := r.client.Select(ctx, r.collectionName, engine.SelectParams{
		Q:    fmt.Sprintf("corpus_name:%s", corpusName),
		Rows: "1",
	})
	if err != nil {
		return Entry{}, err
	}
	if len(resp.Docs) == 0 {
		return Entry{}, fmt.Errorf("%w: corpus %q", mediatorerr.ErrNotFound, corpusName)
	}
	return entryFromDoc(resp.Docs[0])
}

// List returns every registered corpus entry, sorted by id.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	resp, err := r.client.Select(ctx, r.collectionName, engine.SelectParams{Q: "*:*", Rows: "10000"})
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		entry, err := entryFromDoc(d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// FindModelCorpus returns the corpus name that modelName is registered
// against, or ErrNotFound if no registry entry lists it.
func (r *Registry) FindModelCorpus(ctx context.Context, modelName string) (string, error) {
	entries, err := r.List(ctx)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		for _, m := range e.Models {
			if m == modelName {
				return e.CorpusName, nil
			}
		}
	}
	return "", fmt.Errorf("%w: model %q", mediatorerr.ErrNotFound, modelName)
}

// FieldsFor returns the field list registered for a corpus, cached since
// the query executor reads it on every precondition check.
func (r *Registry) FieldsFor(ctx context.Context, corpusName string) ([]string, error) {
	if fields, ok := r.fieldsCache.Get(corpusName); ok {
		return fields, nil
	}
	entry, err := r.Lookup(ctx, corpusName)
	if err != nil {
		return nil, err
	}
	r.fieldsCache.Add(corpusName, entry.Fields)
	return entry.Fields, nil
}

// AddModel atomically appends modelName to a corpus's models list and
// newFields to its fields list (typically "doctpc_M" and "sim_M"). The
// corpus must already be registered (ErrInvariantViolation otherwise).
func (r *Registry) AddModel(ctx context.Context, corpusName, modelName string, newFields []string) error {
	entry, err := r.Lookup(ctx, corpusName)
	if err != nil {
		return fmt.Errorf("%w: model %q references unregistered corpus %q", mediatorerr.ErrInvariantViolation, modelName, corpusName)
	}
	for _, m := range entry.Models {
		if m == modelName {
			return fmt.Errorf("%w: model %q is already registered against corpus %q", mediatorerr.ErrAlreadyExists, modelName, corpusName)
		}
	}

	doc := map[string]any{
		"id":     entry.ID,
		"models": map[string]any{"add": modelName},
	}
	if len(newFields) > 0 {
		doc["fields"] = map[string]any{"add": newFields}
	}
	resp, err := r.client.BatchUpdate(ctx, r.collectionName, []map[string]any{doc})
	if err != nil {
		return err
	}
	if resp.Status != 200 {
		return fmt.Errorf("%w: adding model %q to corpus %q: %s", mediatorerr.ErrEngineTransient, modelName, corpusName, resp.Message)
	}
	r.fieldsCache.Remove(corpusName)
	return nil
}

// RemoveModel atomically removes modelName from a corpus's models list
// and removedFields from its fields list (the mirror of AddModel).
func (r *Registry) RemoveModel(ctx context.Context, corpusName, modelName string, removedFields []string) error {
	entry, err := r.Lookup(ctx, corpusName)
	if err != nil {
		return err
	}

	remaining := make([]string, 0, len(entry.Models))
	for _, m := range entry.Models {
		if m != modelName {
			remaining = append(remaining, m)
		}
	}
	remainingFields := make([]string, 0, len(entry.Fields))
	removed := make(map[string]bool, len(removedFields))
	for _, f := range removedFields {
		removed[f] = true
	}
	for _, f := range entry.Fields {
		if !removed[f] {
			remainingFields = append(remainingFields, f)
		}
	}

	doc := map[string]any{
		"id":     entry.ID,
		"models": map[string]any{"set": remaining},
		"fields": map[string]any{"set": remainingFields},
	}
	resp, err := r.client.BatchUpdate(ctx, r.collectionName, []map[string]any{doc})
	if err != nil {
		return err
	}
	if resp.Status != 200 {
		return fmt.Errorf("%w: removing model %q from corpus %q: %s", mediatorerr.ErrEngineTransient, modelName, corpusName, resp.Message)
	}
	r.fieldsCache.Remove(corpusName)
	return nil
}

// Delete removes a corpus's registry entry. The caller (the indexer) is
// responsible for deleting dependent model collections first; Delete
// itself only refuses when the entry still lists models, since a
// registry entry vanishing while model collections it named still exist
// would leave orphaned model collection names.
func (r *Registry) Delete(ctx context.Context, corpusName string) error {
	entry, err := r.Lookup(ctx, corpusName)
	if err != nil {
		return err
	}
	if len(entry.Models) > 0 {
		return fmt.Errorf("%w: corpus %q still lists %d model(s)", mediatorerr.ErrInvariantViolation, corpusName, len(entry.Models))
	}
	resp, err := r.client.DeleteByID(ctx, r.collectionName, strconv.Itoa(entry.ID))
	if err != nil {
		return err
	}
	if resp.Status != 200 {
		return fmt.Errorf("%w: removing corpus %q: %s", mediatorerr.ErrEngineTransient, corpusName, resp.Message)
	}
	r.fieldsCache.Remove(corpusName)
	return nil
}

func entryFromDoc(doc map[string]any) (Entry, error) {
	id, err := intField(doc, "id")
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:         id,
		CorpusName: stringField(doc, "corpus_name"),
		Fields:     stringSliceField(doc, "fields"),
		Models:     stringSliceField(doc, "models"),
	}, nil
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func stringSliceField(doc map[string]any, key string) []string {
	raw, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intField(doc map[string]any, key string) (int, error) {
	switch v := doc[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: registry document missing numeric %q field", mediatorerr.ErrMalformedInput, key)
	}
}
