package model

import "testing"

// TestEncodeTopicsSumsToScale checks that payload weights are
// non-negative integers summing to exactly the scale, whatever the
// input vector's rounding behavior.
func TestEncodeTopicsSumsToScale(t *testing.T) {
	enc := NewPayloadEncoder(1000, 42)
	vectors := [][]float64{
		{0.2, 0.3, 0.5},
		{1.0 / 3, 1.0 / 3, 1.0 / 3},
		{0.001, 0.001, 0.998},
		{0.0, 0.0, 1.0},
	}
	for _, v := range vectors {
		payload := enc.EncodeTopics(v)
		if got := PayloadSum(payload); got != 1000 {
			t.Errorf("EncodeTopics(%v) = %q, sum = %d, want 1000", v, payload, got)
		}
	}
}

// TestEncodeTopicsNoZeroOrDuplicateEntries checks that an encoded
// payload carries no zero-weight entries and no duplicate topic ids.
func TestEncodeTopicsNoZeroOrDuplicateEntries(t *testing.T) {
	enc := NewPayloadEncoder(1000, 7)
	payload := enc.EncodeTopics([]float64{0.001, 0.001, 0.001, 0.997})
	entries := ParsePayload(payload)
	seen := map[string]bool{}
	for _, e := range entries {
		if e.Weight == 0 {
			t.Errorf("unexpected zero-weight entry %q in %q", e.Token, payload)
		}
		if seen[e.Token] {
			t.Errorf("duplicate token %q in %q", e.Token, payload)
		}
		seen[e.Token] = true
	}
}

func TestEncodeTopicsDeterministicWithFixedSeed(t *testing.T) {
	v := []float64{0.001, 0.001, 0.001, 0.997}
	a := NewPayloadEncoder(1000, 99).EncodeTopics(v)
	b := NewPayloadEncoder(1000, 99).EncodeTopics(v)
	if a != b {
		t.Errorf("same seed produced different payloads: %q vs %q", a, b)
	}
}

func TestEncodeVocabTranslatesIndicesToTerms(t *testing.T) {
	enc := NewPayloadEncoder(1000, 1)
	payload, err := enc.EncodeVocab([]float64{0.5, 0.5}, []string{"cat", "dog"})
	if err != nil {
		t.Fatalf("EncodeVocab: %v", err)
	}
	entries := ParsePayload(payload)
	for _, e := range entries {
		if e.Token != "cat" && e.Token != "dog" {
			t.Errorf("unexpected token %q, want cat or dog", e.Token)
		}
	}
}

func TestEncodeVocabRejectsShortVocab(t *testing.T) {
	enc := NewPayloadEncoder(1000, 1)
	if _, err := enc.EncodeVocab([]float64{0.5, 0.5, 0.0}, []string{"cat"}); err == nil {
		t.Error("expected an error when vocab is shorter than the vector")
	}
}

func TestPayloadSumEmptyPayload(t *testing.T) {
	if got := PayloadSum(""); got != 0 {
		t.Errorf("PayloadSum(\"\") = %d, want 0", got)
	}
}
