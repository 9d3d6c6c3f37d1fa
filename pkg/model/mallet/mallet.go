// Package mallet implements model.TrainerFamily for models trained with
// the mallet LDA trainer: documents ids come from corpus.txt (one record
// per line, document id as the first whitespace-delimited token), aligned
// 1-to-1 with the rows of TMmodel/thetas.npz.
package mallet

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
	"github.com/cognicore/ewbmediator/pkg/model"
	"github.com/cognicore/ewbmediator/pkg/model/sparse"
)

// Family is the mallet trainer family.
type Family struct{}

// New creates a mallet Family.
func New() Family { return Family{} }

// statsFile is the auxiliary per-topic statistics file this
// implementation expects inside TMmodel/. It carries everything
// TopicRecord needs beyond betas.
type statsFile struct {
	Alphas          []float64   `json:"alphas"`
	TopicEntropy    []float64   `json:"topic_entropy"`
	TopicCoherence  []float64   `json:"topic_coherence"`
	NDocsActive     []int       `json:"ndocs_active"`
	TpcDescriptions []string    `json:"tpc_descriptions"`
	TpcLabels       []string    `json:"tpc_labels"`
	Coords          [][]float64 `json:"coords"`
}

type vocabFile struct {
	Vocab []string `json:"vocab"`
}

// Load reads TMmodel/thetas.npz, TMmodel/betas.npz (both in this
// implementation's CSR-on-disk JSON format, see pkg/model/sparse),
// TMmodel/vocab.json, TMmodel/stats.json, and corpus.txt from modelDir.
func (Family) Load(modelDir string, cfg model.TrainConfig) (model.Artifacts, error) {
	tmDir := filepath.Join(modelDir, "TMmodel")

	docTopic, err := loadMatrix(filepath.Join(tmDir, "thetas.npz"))
	if err != nil {
		return model.Artifacts{}, err
	}
	topicWord, err := loadMatrix(filepath.Join(tmDir, "betas.npz"))
	if err != nil {
		return model.Artifacts{}, err
	}

	docIDs, err := loadCorpusIDs(filepath.Join(modelDir, "corpus.txt"))
	if err != nil {
		return model.Artifacts{}, err
	}
	if len(docIDs) != docTopic.Rows {
		return model.Artifacts{}, fmt.Errorf("%w: corpus.txt has %d ids but thetas has %d rows",
			mediatorerr.ErrInvariantViolation, len(docIDs), docTopic.Rows)
	}

	vocab, err := loadVocab(filepath.Join(tmDir, "vocab.json"))
	if err != nil {
		return model.Artifacts{}, err
	}

	stats, err := loadStats(filepath.Join(tmDir, "stats.json"))
	if err != nil {
		return model.Artifacts{}, err
	}

	return model.Artifacts{
		DocTopic:   docTopic,
		TopicWord:  topicWord,
		DocIDs:     docIDs,
		Vocab:      vocab,
		Stats:      stats,
		CorpusName: cfg.CorpusStem(),
	}, nil
}

func loadMatrix(path string) (*sparse.CSR, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", mediatorerr.ErrConfig, path, err)
	}
	defer f.Close()
	m, err := sparse.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", mediatorerr.ErrConfig, path, err)
	}
	return m, nil
}

// loadCorpusIDs reads one document id per line from corpus.txt. Mallet's
// corpus.txt format is "{id} 0 {lemmas...}"; the document id is the
// first whitespace-delimited token. Blank lines are skipped.
func loadCorpusIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", mediatorerr.ErrConfig, path, err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		ids = append(ids, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", mediatorerr.ErrConfig, path, err)
	}
	return ids, nil
}

func loadVocab(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", mediatorerr.ErrConfig, path, err)
	}
	var v vocabFile
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", mediatorerr.ErrConfig, path, err)
	}
	return v.Vocab, nil
}

func loadStats(path string) (model.TopicStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.TopicStats{}, nil
		}
		return model.TopicStats{}, fmt.Errorf("%w: opening %s: %v", mediatorerr.ErrConfig, path, err)
	}
	var s statsFile
	if err := json.Unmarshal(data, &s); err != nil {
		return model.TopicStats{}, fmt.Errorf("%w: parsing %s: %v", mediatorerr.ErrConfig, path, err)
	}
	return model.TopicStats{
		Alphas:          s.Alphas,
		TopicEntropy:    s.TopicEntropy,
		TopicCoherence:  s.TopicCoherence,
		NDocsActive:     s.NDocsActive,
		TpcDescriptions: s.TpcDescriptions,
		TpcLabels:       s.TpcLabels,
		Coords:          s.Coords,
	}, nil
}
