package model

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// DefaultPayloadScale is the fixed integer sum every weighted-payload
// vector is normalized to when no override is configured.
const DefaultPayloadScale = 1000

// PayloadEncoder turns unit-sum float vectors into weighted-payload
// strings. It owns a seeded PRNG so that the tie-break among equally
// truncated coordinates is reproducible across runs.
type PayloadEncoder struct {
	scale int
	rng   *rand.Rand
}

// NewPayloadEncoder creates an encoder for the given payload scale S,
// seeded deterministically so encodings are reproducible in tests.
func NewPayloadEncoder(scale int, seed int64) *PayloadEncoder {
	if scale <= 0 {
		scale = DefaultPayloadScale
	}
	return &PayloadEncoder{scale: scale, rng: rand.New(rand.NewSource(seed))}
}

// EncodeTopics encodes a unit-sum vector v over topic indices into a
// "t0|x0 t1|x1 ..." weighted-payload string, omitting zero entries.
func (e *PayloadEncoder) EncodeTopics(v []float64) string {
	return e.encode(v, func(i int) string { return "t" + strconv.Itoa(i) })
}

// EncodeVocab encodes a unit-sum vector v over vocabulary term ids,
// translating each id through vocab, into a weighted-payload string.
func (e *PayloadEncoder) EncodeVocab(v []float64, vocab []string) (string, error) {
	if len(vocab) < len(v) {
		return "", fmt.Errorf("model: vocab has %d entries, vector has %d", len(vocab), len(v))
	}
	return e.encode(v, func(i int) string { return vocab[i] }), nil
}

// encode fixes a float vector to integer weights in three steps:
//  1. x_i = floor(v_i * S)
//  2. while sum(x) < S, bump a uniformly random index with x_i > 0
//  3. emit "tok_i|x_i" for non-zero entries, space separated
func (e *PayloadEncoder) encode(v []float64, tokenAt func(int) string) string {
	x := make([]int, len(v))
	sum := 0
	var positive []int
	for i, vi := range v {
		xi := int(vi * float64(e.scale))
		if xi < 0 {
			xi = 0
		}
		x[i] = xi
		sum += xi
		if xi > 0 {
			positive = append(positive, i)
		}
	}

	for sum < e.scale && len(positive) > 0 {
		idx := positive[e.rng.Intn(len(positive))]
		x[idx]++
		sum++
	}

	var b strings.Builder
	first := true
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		if !first {
			b.WriteByte(' ')
		}
		first = false
		b.WriteString(tokenAt(i))
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(xi))
	}
	return b.String()
}

// ParsePayload parses a weighted-payload string back into an ordered list
// of (token, weight) pairs, mainly for tests and for Q1-style round trips
// that need to re-derive a vector from a stored payload.
func ParsePayload(payload string) []PayloadEntry {
	fields := strings.Fields(payload)
	entries := make([]PayloadEntry, 0, len(fields))
	for _, f := range fields {
		parts := strings.SplitN(f, "|", 2)
		if len(parts) != 2 {
			continue
		}
		w, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		entries = append(entries, PayloadEntry{Token: parts[0], Weight: w})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Token < entries[j].Token })
	return entries
}

// PayloadEntry is one (token, weight) pair from a parsed weighted-payload
// string.
type PayloadEntry struct {
	Token  string
	Weight int
}

// PayloadSum returns the sum of a payload's weights.
func PayloadSum(payload string) int {
	sum := 0
	for _, e := range ParsePayload(payload) {
		sum += e.Weight
	}
	return sum
}
