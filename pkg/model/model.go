// Package model reads a trained topic model's artifacts (doc-topic and
// topic-word sparse matrices, per-document ids, training config, and
// auxiliary per-topic statistics) and encodes them into the records the
// indexer writes to the engine.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
	"github.com/cognicore/ewbmediator/pkg/model/sparse"
)

// TrainConfig is the subset of trainconfig.json the mediator needs.
type TrainConfig struct {
	TrDtSet string `json:"TrDtSet"`
	Trainer string `json:"trainer"`
}

// CorpusStem returns the stem of the training corpus file named in
// TrDtSet, e.g. "/data/Cordis.json" -> "cordis".
func (c TrainConfig) CorpusStem() string {
	base := filepath.Base(c.TrDtSet)
	ext := filepath.Ext(base)
	return lowercase(base[:len(base)-len(ext)])
}

func lowercase(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func readTrainConfig(path string) (TrainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TrainConfig{}, fmt.Errorf("%w: reading trainconfig.json: %v", mediatorerr.ErrConfig, err)
	}
	var cfg TrainConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return TrainConfig{}, fmt.Errorf("%w: parsing trainconfig.json: %v", mediatorerr.ErrConfig, err)
	}
	return cfg, nil
}

// TopicRecord is one row of per-topic auxiliary data, passed through
// verbatim from trainconfig/model artifacts to the model collection.
type TopicRecord struct {
	ID              string    `json:"id"`
	Betas           string    `json:"betas"`
	Alphas          float64   `json:"alphas"`
	TopicEntropy    float64   `json:"topic_entropy"`
	TopicCoherence  float64   `json:"topic_coherence"`
	NDocsActive     int       `json:"ndocs_active"`
	TpcDescriptions string    `json:"tpc_descriptions"`
	TpcLabels       string    `json:"tpc_labels"`
	Coords          []float64 `json:"coords"`
	Vocab           []string  `json:"vocab"`
}

// DocTopicRecord pairs a persisted document id with its encoded doc-topic
// weighted payload.
type DocTopicRecord struct {
	ID      string
	Payload string
}

// TopicStats carries the auxiliary per-topic statistics a trainer family
// loader produces alongside the raw betas matrix. Fields the trainer
// doesn't compute are left at their zero value.
type TopicStats struct {
	Alphas          []float64
	TopicEntropy    []float64
	TopicCoherence  []float64
	NDocsActive     []int
	TpcDescriptions []string
	TpcLabels       []string

	// Coords holds one (x, y) pair per topic.
	Coords [][]float64
}

// Artifacts is everything a trainer family loader extracts from a model
// directory: the sparse doc-topic and topic-word matrices, the persisted
// document id list (aligned by row with the doc-topic matrix), the
// vocabulary (aligned by column with the topic-word matrix), and the
// auxiliary per-topic statistics.
type Artifacts struct {
	DocTopic   *sparse.CSR
	TopicWord  *sparse.CSR
	DocIDs     []string
	Vocab      []string
	Stats      TopicStats
	CorpusName string
}

// TrainerFamily loads model artifacts for one trainer family (mallet,
// prodlda, ctm, ...). Only mallet is implemented (pkg/model/mallet); other
// families are out of scope until their id-alignment contract is defined.
type TrainerFamily interface {
	Load(modelDir string, cfg TrainConfig) (Artifacts, error)
}

// Loader reads a model directory and encodes its contents into the
// records the indexer writes to the engine.
type Loader struct {
	encoder  *PayloadEncoder
	families map[string]TrainerFamily
}

// NewLoader creates a Loader that encodes payloads at the given scale and
// seed, dispatching to trainer-family implementations in families (keyed
// by trainconfig.json's "trainer" value).
func NewLoader(scale int, seed int64, families map[string]TrainerFamily) *Loader {
	return &Loader{encoder: NewPayloadEncoder(scale, seed), families: families}
}

// Load reads trainconfig.json from modelDir, dispatches to the matching
// trainer family, and returns the loaded artifacts plus the trainconfig.
func (l *Loader) Load(modelDir string) (Artifacts, TrainConfig, error) {
	cfg, err := readTrainConfig(filepath.Join(modelDir, "trainconfig.json"))
	if err != nil {
		return Artifacts{}, TrainConfig{}, err
	}
	family, ok := l.families[cfg.Trainer]
	if !ok {
		return Artifacts{}, TrainConfig{}, fmt.Errorf("%w: unknown trainer family %q", mediatorerr.ErrConfig, cfg.Trainer)
	}
	artifacts, err := family.Load(modelDir, cfg)
	if err != nil {
		return Artifacts{}, TrainConfig{}, err
	}
	return artifacts, cfg, nil
}

// EncodeDocTopics densifies and encodes each row of a.DocTopic, pairing it
// with a.DocIDs in order. len(a.DocIDs) must equal a.DocTopic.Rows; a
// mismatch is an invariant violation, not a recoverable error.
func (l *Loader) EncodeDocTopics(a Artifacts) ([]DocTopicRecord, error) {
	if len(a.DocIDs) != a.DocTopic.Rows {
		return nil, fmt.Errorf("%w: %d persisted ids but doc-topic matrix has %d rows",
			mediatorerr.ErrInvariantViolation, len(a.DocIDs), a.DocTopic.Rows)
	}
	out := make([]DocTopicRecord, a.DocTopic.Rows)
	for i := 0; i < a.DocTopic.Rows; i++ {
		row, err := a.DocTopic.Row(i)
		if err != nil {
			return nil, err
		}
		out[i] = DocTopicRecord{ID: a.DocIDs[i], Payload: l.encoder.EncodeTopics(row)}
	}
	return out, nil
}

// EncodeTopics produces one TopicRecord per row of a.TopicWord, with
// id = "t" + index and betas the word-weighted-payload encoding of that
// row against a.Vocab. Auxiliary statistics are passed through verbatim
// from a.Stats when present.
func (l *Loader) EncodeTopics(a Artifacts) ([]TopicRecord, error) {
	out := make([]TopicRecord, a.TopicWord.Rows)
	for i := 0; i < a.TopicWord.Rows; i++ {
		row, err := a.TopicWord.Row(i)
		if err != nil {
			return nil, err
		}
		betas, err := l.encoder.EncodeVocab(row, a.Vocab)
		if err != nil {
			return nil, err
		}
		rec := TopicRecord{ID: fmt.Sprintf("t%d", i), Betas: betas, Vocab: a.Vocab}
		if i < len(a.Stats.Alphas) {
			rec.Alphas = a.Stats.Alphas[i]
		}
		if i < len(a.Stats.TopicEntropy) {
			rec.TopicEntropy = a.Stats.TopicEntropy[i]
		}
		if i < len(a.Stats.TopicCoherence) {
			rec.TopicCoherence = a.Stats.TopicCoherence[i]
		}
		if i < len(a.Stats.NDocsActive) {
			rec.NDocsActive = a.Stats.NDocsActive[i]
		}
		if i < len(a.Stats.TpcDescriptions) {
			rec.TpcDescriptions = a.Stats.TpcDescriptions[i]
		}
		if i < len(a.Stats.TpcLabels) {
			rec.TpcLabels = a.Stats.TpcLabels[i]
		}
		if i < len(a.Stats.Coords) {
			rec.Coords = a.Stats.Coords[i]
		}
		out[i] = rec
	}
	return out, nil
}
