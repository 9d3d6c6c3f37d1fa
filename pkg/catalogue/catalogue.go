// Package catalogue holds the fixed table of structured query templates
// the mediator answers: one entry per query id, each a string template
// with positional "{}" placeholders that the query executor substitutes
// in a fixed order. The table is built once at init and never mutated
// afterward, matching the "immutable after construction" shared-state
// requirement every request handler relies on.
package catalogue

import (
	"fmt"
	"strings"
)

// ID names one catalogue entry. Q13 is intentionally absent; the slot
// is kept free so the numbering of the queries around it stays stable.
type ID string

const (
	Q1  ID = "Q1"
	Q2  ID = "Q2"
	Q3  ID = "Q3"
	Q4  ID = "Q4"
	Q5  ID = "Q5"
	Q6  ID = "Q6"
	Q7  ID = "Q7"
	Q8  ID = "Q8"
	Q9  ID = "Q9"
	Q10 ID = "Q10"
	Q11 ID = "Q11"
	Q12 ID = "Q12"
	Q14 ID = "Q14"
	Q15 ID = "Q15"
)

// Precondition names the check the executor must pass before running a
// template; it does not prescribe how the check is implemented.
type Precondition string

const (
	// PreconditionCorpus requires the target collection to be a
	// registered corpus.
	PreconditionCorpus Precondition = "corpus"

	// PreconditionModel requires the target collection to be a
	// registered model.
	PreconditionModel Precondition = "model"

	// PreconditionDoctpcField requires doctpc_{M} to be present in the
	// target corpus's registered field list (Q1's precondition, reused
	// by every template built on top of Q1).
	PreconditionDoctpcField Precondition = "doctpc_field"

	// PreconditionCollectionExists requires only that some collection by
	// that name exists (corpus or model).
	PreconditionCollectionExists Precondition = "collection_exists"
)

// Template is one catalogue entry: a query string and optional field
// list, both of which may contain positional "{}" placeholders, plus a
// fixed sort order and the precondition that must hold before running
// it. Normalize indicates the Q5/Q12/Q14 family's 100/S² score scaling
// applies to this template's results.
type Template struct {
	ID            ID
	Purpose       string
	Precondition  Precondition
	Q             string
	FL            string
	Sort          string
	ArgCount      int
	Normalize     bool
	TwoPhaseOf    ID // nonzero for templates that first run another query (Q5/Q12) to obtain their vector argument
}

// placeholder is the literal token every template uses; it is never
// anything but the two characters "{}".
const placeholder = "{}"

// catalogue is the immutable package-level template table.
var catalogue = map[ID]Template{
	Q1: {
		ID: Q1, Purpose: "get doctpc_M of doc by id",
		Precondition: PreconditionDoctpcField,
		Q:            "id:{}", FL: "doctpc_{}",
		ArgCount: 2,
	},
	Q2: {
		ID: Q2, Purpose: "list corpus metadata field names",
		Precondition: PreconditionCorpus,
		ArgCount:     0,
	},
	Q3: {
		ID: Q3, Purpose: "document count",
		Precondition: PreconditionCollectionExists,
		Q:            "*:*",
		ArgCount:     0,
	},
	Q4: {
		ID: Q4, Purpose: "docs with topic weight >= threshold",
		Precondition: PreconditionDoctpcField,
		Q:            "{!payload_check f=doctpc_{} payloads='{}' op='gte'}t{}",
		ArgCount:     3,
	},
	Q5: {
		ID: Q5, Purpose: "docs similar to doc by id",
		Precondition: PreconditionDoctpcField,
		Q:            `{!vp f=doctpc_{} vector="{}"}`,
		ArgCount:     2,
		Normalize:    true,
		TwoPhaseOf:   Q1,
	},
	Q6: {
		ID: Q6, Purpose: "metadata of doc by id",
		Precondition: PreconditionCorpus,
		Q:            "id:{}", FL: "{}",
		ArgCount: 2,
	},
	Q7: {
		ID: Q7, Purpose: "substring match on title",
		Precondition: PreconditionCorpus,
		Q:            "title:{}", FL: "id",
		ArgCount: 1,
	},
	Q8: {
		ID: Q8, Purpose: "topic labels",
		Precondition: PreconditionModel,
		Q:            "*:*", FL: "id,tpc_labels",
		ArgCount: 0,
	},
	Q9: {
		ID: Q9, Purpose: "top docs of a topic",
		Precondition: PreconditionDoctpcField,
		Q:            "{!term f=doctpc_{}}t{}", FL: "id,doctpc_{}",
		ArgCount: 3,
	},
	Q10: {
		ID: Q10, Purpose: "full per-topic info",
		Precondition: PreconditionModel,
		Q:            "*:*",
		FL:           "id,betas,vocab,alphas,topic_entropy,topic_coherence,ndocs_active,tpc_descriptions,tpc_labels,coords",
		ArgCount:     0,
	},
	Q11: {
		ID: Q11, Purpose: "betas of a topic",
		Precondition: PreconditionModel,
		Q:            "id:t{}", FL: "betas",
		ArgCount: 1,
	},
	Q12: {
		ID: Q12, Purpose: "most correlated topics",
		Precondition: PreconditionModel,
		Q:            `{!vp f=betas vector="{}"}`,
		ArgCount:     1,
		Normalize:    true,
		TwoPhaseOf:   Q11,
	},
	Q14: {
		ID: Q14, Purpose: "docs similar to free text",
		Precondition: PreconditionDoctpcField,
		Q:            `{!vp f=doctpc_{} vector="{}"}`,
		ArgCount:     2,
		Normalize:    true,
	},
	Q15: {
		ID: Q15, Purpose: "lemmas of doc by id",
		Precondition: PreconditionCorpus,
		Q:            "id:{}", FL: "all_lemmas",
		ArgCount: 1,
	},
}

// Lookup returns the template for id.
func Lookup(id ID) (Template, bool) {
	t, ok := catalogue[id]
	return t, ok
}

// Customize substitutes args into t.Q and t.FL, in that order (Q's
// placeholders first, left to right, then FL's), and returns the
// resulting query and field-list strings. It errors if len(args) !=
// t.ArgCount or if any placeholder would survive substitution.
func Customize(t Template, args ...string) (q, fl string, err error) {
	if len(args) != t.ArgCount {
		return "", "", fmt.Errorf("catalogue: %s expects %d argument(s), got %d", t.ID, t.ArgCount, len(args))
	}
	remaining := args
	q, remaining, err = substitute(t.Q, remaining)
	if err != nil {
		return "", "", fmt.Errorf("catalogue: %s: %w", t.ID, err)
	}
	fl, remaining, err = substitute(t.FL, remaining)
	if err != nil {
		return "", "", fmt.Errorf("catalogue: %s: %w", t.ID, err)
	}
	if len(remaining) != 0 {
		return "", "", fmt.Errorf("catalogue: %s: %d argument(s) left unused", t.ID, len(remaining))
	}
	if strings.Contains(q, placeholder) || strings.Contains(fl, placeholder) {
		return "", "", fmt.Errorf("catalogue: %s: a placeholder survived substitution", t.ID)
	}
	return q, fl, nil
}

func substitute(s string, args []string) (string, []string, error) {
	var b strings.Builder
	for {
		idx := strings.Index(s, placeholder)
		if idx == -1 {
			b.WriteString(s)
			break
		}
		if len(args) == 0 {
			return "", nil, fmt.Errorf("ran out of arguments mid-template")
		}
		b.WriteString(s[:idx])
		b.WriteString(args[0])
		args = args[1:]
		s = s[idx+len(placeholder):]
	}
	return b.String(), args, nil
}
