// Package query compiles the catalogue's templates into concrete engine
// requests: it validates each template's precondition, substitutes
// arguments, paginates, applies score normalization to the similarity
// family of templates, and optionally persists results to disk.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cognicore/ewbmediator/pkg/catalogue"
	"github.com/cognicore/ewbmediator/pkg/engine"
	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
	"github.com/cognicore/ewbmediator/pkg/registry"
)

// Params carries the caller-supplied pagination and persistence options
// common to every query.
type Params struct {
	Start string

	// Rows, left empty, makes the executor run Q3 against the target
	// collection first and use its count, i.e. "give me all".
	Rows string

	// ResultsFilePath, if set, causes the returned documents to be
	// written there as an indented JSON array after the query completes.
	ResultsFilePath string
}

// Result is what every query-executor method returns.
type Result struct {
	Docs     []map[string]any
	NumFound int
}

// Executor runs catalogue templates against the engine.
type Executor struct {
	engine       *engine.Client
	registry     *registry.Registry
	payloadScale int
}

// New creates an Executor. payloadScale is the process-wide S used to
// normalize Q5/Q12/Q14 scores to a percentage.
func New(client *engine.Client, reg *registry.Registry, payloadScale int) *Executor {
	return &Executor{engine: client, registry: reg, payloadScale: payloadScale}
}

// Count runs Q3 against collection: the total document count, ignoring
// pagination (rows=0).
func (e *Executor) Count(ctx context.Context, collection string) (int, error) {
	tpl, _ := catalogue.Lookup(catalogue.Q3)
	resp, err := e.engine.Select(ctx, collection, engine.SelectParams{Q: tpl.Q, Rows: "0"})
	if err != nil {
		return 0, err
	}
	if resp.Status != 200 {
		return 0, fmt.Errorf("%w: counting %q: %s", mediatorerr.ErrEngineTransient, collection, resp.Message)
	}
	return resp.NumFound, nil
}

// resolvePagination fills in Params.Start/Rows: Start defaults to "0";
// Rows, left empty, is resolved by running Q3 against target.
func (e *Executor) resolvePagination(ctx context.Context, target string, p Params) (start, rows string, err error) {
	start = p.Start
	if start == "" {
		start = "0"
	}
	rows = p.Rows
	if rows == "" {
		count, err := e.Count(ctx, target)
		if err != nil {
			return "", "", err
		}
		rows = strconv.Itoa(count)
	}
	return start, rows, nil
}

func (e *Executor) requireCorpus(ctx context.Context, corpus string) error {
	if _, err := e.registry.Lookup(ctx, corpus); err != nil {
		return err
	}
	return nil
}

func (e *Executor) requireModel(ctx context.Context, model string) error {
	if _, err := e.registry.FindModelCorpus(ctx, model); err != nil {
		return err
	}
	return nil
}

func (e *Executor) requireDoctpcField(ctx context.Context, corpus, model string) error {
	fields, err := e.registry.FieldsFor(ctx, corpus)
	if err != nil {
		return err
	}
	want := "doctpc_" + model
	for _, f := range fields {
		if f == want {
			return nil
		}
	}
	return fmt.Errorf("%w: field %q not registered against corpus %q", mediatorerr.ErrNotFound, want, corpus)
}

func (e *Executor) runSelect(ctx context.Context, collection, q, fl string, params Params, normalize bool) (Result, error) {
	start, rows, err := e.resolvePagination(ctx, collection, params)
	if err != nil {
		return Result{}, err
	}
	resp, err := e.engine.Select(ctx, collection, engine.SelectParams{Q: q, FL: fl, Start: start, Rows: rows})
	if err != nil {
		return Result{}, err
	}
	if resp.Status != 200 {
		return Result{}, fmt.Errorf("%w: querying %q: %s", mediatorerr.ErrEngineTransient, collection, resp.Message)
	}
	docs := resp.Docs
	if normalize {
		docs = normalizeScores(docs, e.payloadScale)
	}
	if params.ResultsFilePath != "" {
		if err := persist(params.ResultsFilePath, docs); err != nil {
			// Deliberately no sentinel kind: a failed results write is a
			// server-side fault (500), not an engine condition.
			return Result{}, fmt.Errorf("writing results to %s: %v", params.ResultsFilePath, err)
		}
	}
	return Result{Docs: docs, NumFound: resp.NumFound}, nil
}

// normalizeScores multiplies each document's "score" field by 100/(S*S),
// turning the raw payload dot product into a percentage-scaled
// similarity.
func normalizeScores(docs []map[string]any, scale int) []map[string]any {
	factor := 100.0 / float64(scale*scale)
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		cp := make(map[string]any, len(d))
		for k, v := range d {
			cp[k] = v
		}
		if raw, ok := cp["score"]; ok {
			if f, ok := toFloat(raw); ok {
				cp["score"] = f * factor
			}
		}
		out[i] = cp
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func persist(path string, docs []map[string]any) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DocTopic runs Q1: the doctpc_M payload of one document.
func (e *Executor) DocTopic(ctx context.Context, corpus, docID, model string) (string, error) {
	if err := e.requireDoctpcField(ctx, corpus, model); err != nil {
		return "", err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q1)
	q, fl, err := catalogue.Customize(tpl, docID, model)
	if err != nil {
		return "", err
	}
	resp, err := e.engine.Select(ctx, corpus, engine.SelectParams{Q: q, FL: fl, Rows: "1"})
	if err != nil {
		return "", err
	}
	if len(resp.Docs) == 0 {
		return "", fmt.Errorf("%w: document %q in corpus %q", mediatorerr.ErrNotFound, docID, corpus)
	}
	field := "doctpc_" + model
	payload, _ := resp.Docs[0][field].(string)
	return payload, nil
}

// CorpusFields runs Q2: the corpus's registered field list, minus the
// denylist and any doctpc_* field.
func (e *Executor) CorpusFields(ctx context.Context, corpus string, denylist []string) ([]string, error) {
	if err := e.requireCorpus(ctx, corpus); err != nil {
		return nil, err
	}
	denied := make(map[string]bool, len(denylist))
	for _, f := range denylist {
		denied[f] = true
	}
	fields, err := e.registry.FieldsFor(ctx, corpus)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if denied[f] || strings.HasPrefix(f, "doctpc_") {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// DocsAboveThreshold runs Q4: documents whose doctpc_M weight on topic
// is >= threshold.
func (e *Executor) DocsAboveThreshold(ctx context.Context, corpus, model string, topic, threshold int, params Params) (Result, error) {
	if err := e.requireDoctpcField(ctx, corpus, model); err != nil {
		return Result{}, err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q4)
	q, fl, err := catalogue.Customize(tpl, model, strconv.Itoa(threshold), strconv.Itoa(topic))
	if err != nil {
		return Result{}, err
	}
	return e.runSelect(ctx, corpus, q, fl, params, false)
}

// SimilarToDoc runs Q5: first fetches the document's payload (Q1), then
// queries by vector similarity against it.
func (e *Executor) SimilarToDoc(ctx context.Context, corpus, model, docID string, params Params) (Result, error) {
	if err := e.requireDoctpcField(ctx, corpus, model); err != nil {
		return Result{}, err
	}
	payload, err := e.DocTopic(ctx, corpus, docID, model)
	if err != nil {
		return Result{}, err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q5)
	q, fl, err := catalogue.Customize(tpl, model, payload)
	if err != nil {
		return Result{}, err
	}
	return e.runSelect(ctx, corpus, q, fl, params, true)
}

// SimilarToText runs Q14: documents ranked by vector similarity to a
// caller-supplied payload.
func (e *Executor) SimilarToText(ctx context.Context, corpus, model, payload string, params Params) (Result, error) {
	if err := e.requireDoctpcField(ctx, corpus, model); err != nil {
		return Result{}, err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q14)
	q, fl, err := catalogue.Customize(tpl, model, payload)
	if err != nil {
		return Result{}, err
	}
	return e.runSelect(ctx, corpus, q, fl, params, true)
}

// Metadata runs Q6: the non-payload metadata fields of one document.
func (e *Executor) Metadata(ctx context.Context, corpus, docID string, denylist []string) (map[string]any, error) {
	fields, err := e.CorpusFields(ctx, corpus, denylist)
	if err != nil {
		return nil, err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q6)
	q, fl, err := catalogue.Customize(tpl, docID, strings.Join(fields, ","))
	if err != nil {
		return nil, err
	}
	resp, err := e.engine.Select(ctx, corpus, engine.SelectParams{Q: q, FL: fl, Rows: "1"})
	if err != nil {
		return nil, err
	}
	if len(resp.Docs) == 0 {
		return nil, fmt.Errorf("%w: document %q in corpus %q", mediatorerr.ErrNotFound, docID, corpus)
	}
	return resp.Docs[0], nil
}

// SearchTitle runs Q7: documents whose title contains string.
func (e *Executor) SearchTitle(ctx context.Context, corpus, substring string, params Params) (Result, error) {
	if err := e.requireCorpus(ctx, corpus); err != nil {
		return Result{}, err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q7)
	q, fl, err := catalogue.Customize(tpl, substring)
	if err != nil {
		return Result{}, err
	}
	return e.runSelect(ctx, corpus, q, fl, params, false)
}

// TopicLabels runs Q8: every topic's label in a model collection.
func (e *Executor) TopicLabels(ctx context.Context, model string, params Params) (Result, error) {
	if err := e.requireModel(ctx, model); err != nil {
		return Result{}, err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q8)
	return e.runSelect(ctx, model, tpl.Q, tpl.FL, params, false)
}

// TopDocsOfTopic runs Q9: documents scored by their doctpc_M weight on
// one topic, highest first.
func (e *Executor) TopDocsOfTopic(ctx context.Context, corpus, model string, topic int, params Params) (Result, error) {
	if err := e.requireDoctpcField(ctx, corpus, model); err != nil {
		return Result{}, err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q9)
	q, fl, err := catalogue.Customize(tpl, model, strconv.Itoa(topic), model)
	if err != nil {
		return Result{}, err
	}
	return e.runSelect(ctx, corpus, q, fl, params, false)
}

// TopicInfo runs Q10: the full per-topic record set of a model.
func (e *Executor) TopicInfo(ctx context.Context, model string, params Params) (Result, error) {
	if err := e.requireModel(ctx, model); err != nil {
		return Result{}, err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q10)
	return e.runSelect(ctx, model, tpl.Q, tpl.FL, params, false)
}

// TopicBetas runs Q11: the betas payload of one topic.
func (e *Executor) TopicBetas(ctx context.Context, model string, topic int) (string, error) {
	if err := e.requireModel(ctx, model); err != nil {
		return "", err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q11)
	q, fl, err := catalogue.Customize(tpl, strconv.Itoa(topic))
	if err != nil {
		return "", err
	}
	resp, err := e.engine.Select(ctx, model, engine.SelectParams{Q: q, FL: fl, Rows: "1"})
	if err != nil {
		return "", err
	}
	if len(resp.Docs) == 0 {
		return "", fmt.Errorf("%w: topic t%d in model %q", mediatorerr.ErrNotFound, topic, model)
	}
	betas, _ := resp.Docs[0]["betas"].(string)
	return betas, nil
}

// CorrelatedTopics runs Q12: first fetches a topic's betas (Q11), then
// ranks every other topic by vector similarity against it.
func (e *Executor) CorrelatedTopics(ctx context.Context, model string, topic int, params Params) (Result, error) {
	betas, err := e.TopicBetas(ctx, model, topic)
	if err != nil {
		return Result{}, err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q12)
	q, fl, err := catalogue.Customize(tpl, betas)
	if err != nil {
		return Result{}, err
	}
	return e.runSelect(ctx, model, q, fl, params, true)
}

// Lemmas runs Q15: the lemmas field of one document.
func (e *Executor) Lemmas(ctx context.Context, corpus, docID string) (string, error) {
	if err := e.requireCorpus(ctx, corpus); err != nil {
		return "", err
	}
	tpl, _ := catalogue.Lookup(catalogue.Q15)
	q, fl, err := catalogue.Customize(tpl, docID)
	if err != nil {
		return "", err
	}
	resp, err := e.engine.Select(ctx, corpus, engine.SelectParams{Q: q, FL: fl, Rows: "1"})
	if err != nil {
		return "", err
	}
	if len(resp.Docs) == 0 {
		return "", fmt.Errorf("%w: document %q in corpus %q", mediatorerr.ErrNotFound, docID, corpus)
	}
	lemmas, _ := resp.Docs[0]["all_lemmas"].(string)
	return lemmas, nil
}
