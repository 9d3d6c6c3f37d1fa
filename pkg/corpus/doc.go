package corpus

import (
	"sort"
	"strings"
)

// Document is one corpus row: the renamed id/title/date fields, derived
// lemmas/nwords_per_doc/bow fields, and any remaining source columns
// preserved under their original names.
type Document map[string]any

// FieldConfig names the title/date columns for one corpus, resolved by
// the caller from the per-corpus-stem configuration section.
type FieldConfig struct {
	TitleField string
	DateField  string
}

// tokenDict assigns dense integer ids to tokens in first-seen order, the
// way the source system's gensim Dictionary does with allow_update=True
// during a single streaming pass. The final bow fields are emitted as
// word|count (not id|count); the dense ids only make the word/count
// computation and ordering reproducible row over row.
type tokenDict struct {
	ids map[string]int
}

func newTokenDict() *tokenDict {
	return &tokenDict{ids: make(map[string]int)}
}

func (d *tokenDict) id(token string) int {
	id, ok := d.ids[token]
	if !ok {
		id = len(d.ids)
		d.ids[token] = id
	}
	return id
}

// wordCount counts whitespace-delimited tokens in lemmas. Empty lemmas
// count as 0.
func wordCount(lemmas string) int {
	if strings.TrimSpace(lemmas) == "" {
		return 0
	}
	return len(strings.Fields(lemmas))
}

// bagOfWords builds the "word|count word|count ..." string for one
// document's lemmas, registering any newly-seen tokens in dict. Empty
// documents produce "" (the caller maps that to a null field).
func bagOfWords(lemmas string, dict *tokenDict) string {
	fields := strings.Fields(lemmas)
	if len(fields) == 0 {
		return ""
	}
	counts := make(map[string]int, len(fields))
	order := make([]string, 0, len(fields))
	for _, tok := range fields {
		if _, seen := counts[tok]; !seen {
			order = append(order, tok)
		}
		counts[tok]++
		dict.id(tok) // register in the corpus-wide dictionary
	}
	sort.Slice(order, func(i, j int) bool { return dict.id(order[i]) < dict.id(order[j]) })

	var b strings.Builder
	for i, tok := range order {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
		b.WriteByte('|')
		b.WriteString(itoa(counts[tok]))
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
