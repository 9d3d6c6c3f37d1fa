package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
)

// Cursor streams documents out of one corpus's columnar data file one row
// at a time, the way database/sql.Rows streams query results: callers
// call Next then Scan in a loop and never see more than one row's worth
// of the file materialized at once. A Cursor is not restartable and must
// be Closed when the caller is done with it, whether or not it was
// iterated to completion.
type Cursor struct {
	file   *os.File
	reader *csv.Reader
	header map[string]int

	dtset  Dtset
	fields FieldConfig
	dict   *tokenDict

	dateCols map[string]bool

	cur Document
	err error
}

// Open reads the manifest at manifestPath and returns a Cursor streaming
// its single Dtset's data file. fields names the title/date columns to
// carry through verbatim (resolved by the caller from its per-corpus
// configuration); either may be empty if the corpus has no such column.
func Open(manifestPath string, fields FieldConfig) (*Cursor, error) {
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	dtset := manifest.Dtsets[0]

	dataPath := dtset.Parquet
	if !filepath.IsAbs(dataPath) {
		dataPath = filepath.Join(filepath.Dir(manifestPath), dataPath)
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening corpus data file %s: %v", mediatorerr.ErrConfig, dataPath, err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	cols, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: reading header of %s: %v", mediatorerr.ErrConfig, dataPath, err)
	}

	header := make(map[string]int, len(cols))
	for i, name := range cols {
		header[name] = i
	}
	if _, ok := header[dtset.IDFld]; !ok {
		f.Close()
		return nil, fmt.Errorf("%w: id column %q not present in %s", mediatorerr.ErrConfig, dtset.IDFld, dataPath)
	}
	for _, lf := range dtset.LemmasFld {
		if _, ok := header[lf]; !ok {
			f.Close()
			return nil, fmt.Errorf("%w: lemmas column %q not present in %s", mediatorerr.ErrConfig, lf, dataPath)
		}
	}

	return &Cursor{
		file:     f,
		reader:   r,
		header:   header,
		dtset:    dtset,
		fields:   fields,
		dict:     newTokenDict(),
		dateCols: make(map[string]bool),
	}, nil
}

// Columns returns the names of the fields every document this cursor
// emits can carry: the renamed id/title/date columns, the derived
// all_lemmas/nwords_per_doc/bow fields, and the remaining source columns
// under their original names. Known before any row is read, so callers
// can register the corpus's field list ahead of streaming its documents.
func (c *Cursor) Columns() []string {
	cols := []string{"id"}
	if c.fields.TitleField != "" {
		cols = append(cols, "title")
	}
	if c.fields.DateField != "" {
		cols = append(cols, "date")
	}
	cols = append(cols, "all_lemmas", "nwords_per_doc", "bow")

	passthrough := make([]string, 0, len(c.header))
	for name := range c.header {
		switch name {
		case c.dtset.IDFld, c.fields.TitleField, c.fields.DateField:
			continue
		}
		passthrough = append(passthrough, name)
	}
	sort.Strings(passthrough)
	return append(cols, passthrough...)
}

// Next advances the cursor to the next document, returning false at EOF
// or after the first error (inspect Err to distinguish the two).
func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	record, err := c.reader.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.err = fmt.Errorf("%w: reading corpus row: %v", mediatorerr.ErrMalformedInput, err)
		}
		return false
	}
	c.cur = c.buildDocument(record)
	return true
}

// Scan returns the document built by the most recent successful Next.
func (c *Cursor) Scan() (Document, error) {
	if c.cur == nil {
		return nil, fmt.Errorf("%w: Scan called before a successful Next", mediatorerr.ErrMalformedInput)
	}
	return c.cur, nil
}

// Err returns the first error encountered during iteration, or nil if
// iteration ended at a clean EOF.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying file. Safe to call more than once.
func (c *Cursor) Close() error {
	return c.file.Close()
}

func (c *Cursor) col(record []string, name string) string {
	i, ok := c.header[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func (c *Cursor) buildDocument(record []string) Document {
	doc := make(Document, len(c.header)+3)
	for name, i := range c.header {
		if i >= len(record) {
			continue
		}
		switch name {
		case c.dtset.IDFld, c.fields.TitleField, c.fields.DateField:
			continue
		default:
			doc[name] = c.valueFor(name, record[i])
		}
	}

	doc["id"] = cleanXML(c.col(record, c.dtset.IDFld))
	if c.fields.TitleField != "" {
		doc["title"] = cleanXML(c.col(record, c.fields.TitleField))
	}
	if c.fields.DateField != "" {
		doc["date"] = normalizeDate(c.col(record, c.fields.DateField))
	}

	lemmas := cleanXML(c.lemmasFor(record))
	doc["all_lemmas"] = lemmas
	doc["nwords_per_doc"] = wordCount(lemmas)
	if bow := bagOfWords(lemmas, c.dict); bow != "" {
		doc["bow"] = bow
	}

	return doc
}

func (c *Cursor) lemmasFor(record []string) string {
	parts := make([]string, 0, len(c.dtset.LemmasFld))
	for _, lf := range c.dtset.LemmasFld {
		if v := c.col(record, lf); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// valueFor normalizes a passthrough column's value: columns discovered to
// hold timestamps (by the looksLikeTimestamp heuristic, memoized once
// per column since the corpus has no schema to consult upfront) are
// normalized to the fixed date wire format; everything else passes
// through with XML-invalid code points stripped.
func (c *Cursor) valueFor(name, raw string) string {
	known, checked := c.dateCols[name]
	if !checked && raw != "" {
		known = looksLikeTimestamp(raw)
		c.dateCols[name] = known
	}
	if known {
		return normalizeDate(raw)
	}
	return cleanXML(raw)
}
