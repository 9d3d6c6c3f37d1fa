// Package corpus loads a logical corpus (a manifest plus one columnar
// data file) into the flat document records the indexer writes to the
// engine: it renames the id/title/date columns, computes a word count and
// bag-of-words string from the lemma fields, and normalizes date columns
// to a fixed UTC instant form.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
)

// Manifest describes a logical corpus: one or more Dtsets entries, each
// pointing at a columnar data file and naming its id and lemma columns.
// The core rejects manifests with more than one Dtsets entry.
type Manifest struct {
	Dtsets []Dtset `json:"Dtsets"`
}

// Dtset names one columnar data file and the columns to read from it.
type Dtset struct {
	// Parquet is the path to the columnar data file. This implementation
	// reads it as header-led CSV; the field name is kept for fidelity
	// with the manifest's wire format.
	Parquet string `json:"parquet"`

	// IDFld is the column to rename to "id".
	IDFld string `json:"idfld"`

	// LemmasFld lists the columns concatenated (space-joined, in order)
	// into the "all_lemmas" field used to compute nwords_per_doc and bow.
	LemmasFld []string `json:"lemmasfld"`
}

// LoadManifest reads and parses a logical-corpus manifest from path.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: reading manifest %s: %v", mediatorerr.ErrConfig, path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: parsing manifest %s: %v", mediatorerr.ErrConfig, path, err)
	}
	if len(m.Dtsets) != 1 {
		return Manifest{}, fmt.Errorf("%w: manifest %s has %d Dtsets entries, only exactly one is supported",
			mediatorerr.ErrConfig, path, len(m.Dtsets))
	}
	return m, nil
}
