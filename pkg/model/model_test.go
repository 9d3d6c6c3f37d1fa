package model

import (
	"errors"
	"testing"

	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
	"github.com/cognicore/ewbmediator/pkg/model/sparse"
)

func TestCorpusStemLowercasesAndStripsExtension(t *testing.T) {
	cfg := TrainConfig{TrDtSet: "/data/Cordis.json"}
	if got := cfg.CorpusStem(); got != "cordis" {
		t.Errorf("CorpusStem() = %q, want %q", got, "cordis")
	}
}

func TestEncodeDocTopicsRejectsLengthMismatch(t *testing.T) {
	loader := NewLoader(1000, 1, nil)
	artifacts := Artifacts{
		DocTopic: sparse.New([][]float64{{1, 0}, {0, 1}}),
		DocIDs:   []string{"only-one"},
	}
	_, err := loader.EncodeDocTopics(artifacts)
	if !errors.Is(err, mediatorerr.ErrInvariantViolation) {
		t.Errorf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestEncodeDocTopicsPairsIDsInOrder(t *testing.T) {
	loader := NewLoader(1000, 1, nil)
	artifacts := Artifacts{
		DocTopic: sparse.New([][]float64{{1, 0}, {0, 1}}),
		DocIDs:   []string{"d1", "d2"},
	}
	records, err := loader.EncodeDocTopics(artifacts)
	if err != nil {
		t.Fatalf("EncodeDocTopics: %v", err)
	}
	if len(records) != 2 || records[0].ID != "d1" || records[1].ID != "d2" {
		t.Errorf("records = %+v", records)
	}
	if PayloadSum(records[0].Payload) != 1000 {
		t.Errorf("records[0].Payload sum = %d, want 1000", PayloadSum(records[0].Payload))
	}
}

func TestEncodeTopicsUsesTPrefixedIDs(t *testing.T) {
	loader := NewLoader(1000, 1, nil)
	artifacts := Artifacts{
		TopicWord: sparse.New([][]float64{{0.5, 0.5}, {1, 0}}),
		Vocab:     []string{"cat", "dog"},
		Stats: TopicStats{
			Alphas: []float64{0.1, 0.2},
			Coords: [][]float64{{0.3, 0.7}, {0.6, 0.4}},
		},
	}
	records, err := loader.EncodeTopics(artifacts)
	if err != nil {
		t.Fatalf("EncodeTopics: %v", err)
	}
	if len(records) != 2 || records[0].ID != "t0" || records[1].ID != "t1" {
		t.Errorf("records = %+v", records)
	}
	if records[1].Alphas != 0.2 {
		t.Errorf("records[1].Alphas = %v, want 0.2", records[1].Alphas)
	}
	if len(records[0].Coords) != 2 || records[0].Coords[0] != 0.3 || records[0].Coords[1] != 0.7 {
		t.Errorf("records[0].Coords = %v, want [0.3 0.7]", records[0].Coords)
	}
}
