package enginetest

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// matchQuery evaluates the small subset of the engine's query language the
// mediator actually emits: *:*, id:{v}, field:{substring}, the
// {!payload_check ...} and {!term ...} token-weighted-field functions, and
// the {!vp ...} vector scoring function.
func matchQuery(c *collection, q string) []map[string]any {
	switch {
	case q == "" || q == "*:*":
		return allDocs(c)
	case strings.HasPrefix(q, "{!payload_check"):
		return matchPayloadCheck(c, q)
	case strings.HasPrefix(q, "{!term"):
		return matchTerm(c, q)
	case strings.HasPrefix(q, "{!vp"):
		return matchVectorScore(c, q)
	default:
		return matchFieldEquals(c, q)
	}
}

func allDocs(c *collection) []map[string]any {
	out := make([]map[string]any, 0, len(c.docs))
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, c.docs[id])
	}
	return out
}

var fieldEqualsRe = regexp.MustCompile(`^(\w+):(.*)$`)

// matchFieldEquals evaluates one or more "field:value" clauses joined by
// " AND ", the only boolean composition the mediator's registry queries
// use.
func matchFieldEquals(c *collection, q string) []map[string]any {
	clauses := strings.Split(q, " AND ")
	var out []map[string]any
	for _, d := range allDocs(c) {
		if matchesAllClauses(d, clauses) {
			out = append(out, d)
		}
	}
	return out
}

func matchesAllClauses(d map[string]any, clauses []string) bool {
	for _, clause := range clauses {
		m := fieldEqualsRe.FindStringSubmatch(strings.TrimSpace(clause))
		if m == nil {
			return false
		}
		field, value := m[1], strings.Trim(m[2], `"`)
		fv, _ := d[field].(string)
		if field == "title" {
			if !strings.Contains(strings.ToLower(fv), strings.ToLower(value)) {
				return false
			}
			continue
		}
		if fv != value {
			return false
		}
	}
	return true
}

var payloadCheckRe = regexp.MustCompile(`\{!payload_check f=(\S+) payloads='([0-9]+)' op='(\w+)'\}t(\d+)`)

func matchPayloadCheck(c *collection, q string) []map[string]any {
	m := payloadCheckRe.FindStringSubmatch(q)
	if m == nil {
		return nil
	}
	field, threshold, op, topic := m[1], m[2], m[3], m[4]
	thr, _ := strconv.Atoi(threshold)
	var out []map[string]any
	for _, d := range allDocs(c) {
		payload, _ := d[field].(string)
		weights := parsePayload(payload)
		w, ok := weights["t"+topic]
		if !ok {
			continue
		}
		if payloadOpMatches(op, w, thr) {
			out = append(out, d)
		}
	}
	return out
}

func payloadOpMatches(op string, w, thr int) bool {
	switch op {
	case "gte":
		return w >= thr
	case "gt":
		return w > thr
	case "lte":
		return w <= thr
	case "lt":
		return w < thr
	case "eq":
		return w == thr
	default:
		return false
	}
}

var termRe = regexp.MustCompile(`\{!term f=(\S+)\}t(\d+)`)

func matchTerm(c *collection, q string) []map[string]any {
	m := termRe.FindStringSubmatch(q)
	if m == nil {
		return nil
	}
	field, topic := m[1], m[2]
	var out []map[string]any
	for _, d := range allDocs(c) {
		payload, _ := d[field].(string)
		weights := parsePayload(payload)
		if w, ok := weights["t"+topic]; ok && w > 0 {
			out = append(out, cloneWithScore(d, float64(w)))
		}
	}
	return out
}

var vpRe = regexp.MustCompile(`\{!vp f=(\S+) vector="([^"]*)"\}`)

func matchVectorScore(c *collection, q string) []map[string]any {
	m := vpRe.FindStringSubmatch(q)
	if m == nil {
		return nil
	}
	field, vector := m[1], m[2]
	queryWeights := parsePayload(vector)
	var out []map[string]any
	for _, d := range allDocs(c) {
		payload, _ := d[field].(string)
		weights := parsePayload(payload)
		score := dotProduct(queryWeights, weights)
		out = append(out, cloneWithScore(d, score))
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, _ := out[i]["score"].(float64)
		sj, _ := out[j]["score"].(float64)
		return si > sj
	})
	return out
}

func cloneWithScore(d map[string]any, score float64) map[string]any {
	out := make(map[string]any, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	out["score"] = score
	return out
}

func dotProduct(a, b map[string]int) float64 {
	sum := 0
	for k, av := range a {
		if bv, ok := b[k]; ok {
			sum += av * bv
		}
	}
	return float64(sum)
}

// parsePayload parses a weighted-payload string "t0|200 t1|50" into a
// token -> weight map.
func parsePayload(s string) map[string]int {
	out := make(map[string]int)
	for _, tok := range strings.Fields(s) {
		parts := strings.SplitN(tok, "|", 2)
		if len(parts) != 2 {
			continue
		}
		w, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		out[parts[0]] = w
	}
	return out
}
