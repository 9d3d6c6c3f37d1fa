// Package enginetest provides an in-memory fake of the backing search
// engine's HTTP API, speaking the same wire envelope as the real engine,
// for exercising pkg/engine and its callers without a live server.
package enginetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Server is a fake search engine. Zero value is not usable; use New.
type Server struct {
	mu          sync.Mutex
	collections map[string]*collection
	httpServer  *httptest.Server
}

type collection struct {
	fields map[string]string // field name -> type
	docs   map[string]map[string]any
}

// New starts a fake engine and returns it. Call Close when done.
func New() *Server {
	s := &Server{collections: make(map[string]*collection)}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the base URL of the fake engine, suitable for engine.Config.BaseURL.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the fake engine down.
func (s *Server) Close() { s.httpServer.Close() }

// Docs returns a snapshot of every document currently stored in col, for
// assertions in tests.
func (s *Server) Docs(col string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[col]
	if !ok {
		return nil
	}
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

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/collections" && r.Method == http.MethodPost:
		s.handleCreate(w, r)
	case r.URL.Path == "/api/collections" && r.Method == http.MethodGet && r.URL.Query().Get("action") == "DELETE":
		s.handleDelete(w, r)
	case r.URL.Path == "/api/collections" && r.Method == http.MethodGet:
		s.handleList(w, r)
	case strings.HasSuffix(r.URL.Path, "/schema"):
		s.handleSchema(w, r)
	case strings.HasSuffix(r.URL.Path, "/update"):
		s.handleUpdate(w, r)
	case strings.HasSuffix(r.URL.Path, "/select"):
		s.handleSelect(w, r)
	default:
		http.NotFound(w, r)
	}
}

func writeOK(w http.ResponseWriter, extra map[string]any) {
	env := map[string]any{"responseHeader": map[string]any{"status": 0, "QTime": 1}}
	for k, v := range extra {
		env[k] = v
	}
	json.NewEncoder(w).Encode(env)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	env := map[string]any{
		"responseHeader": map[string]any{"status": status, "QTime": 0},
		"error":          map[string]any{"msg": msg},
	}
	json.NewEncoder(w).Encode(env)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Create struct {
			Name string `json:"name"`
		} `json:"create"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[body.Create.Name]; exists {
		writeErr(w, http.StatusConflict, "Collection "+body.Create.Name+" already exists")
		return
	}
	s.collections[body.Create.Name] = &collection{
		fields: make(map[string]string),
		docs:   make(map[string]map[string]any),
	}
	writeOK(w, nil)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	writeOK(w, nil)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	writeOK(w, map[string]any{"collections": names})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	name := collectionFromSchemaPath(r.URL.Path)
	var body map[string]map[string]any
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		writeErr(w, http.StatusNotFound, "collection not found")
		return
	}
	if add, ok := body["add-field"]; ok {
		fname, _ := add["name"].(string)
		ftype, _ := add["type"].(string)
		c.fields[fname] = ftype
	}
	if del, ok := body["delete-field"]; ok {
		fname, _ := del["name"].(string)
		delete(c.fields, fname)
	}
	writeOK(w, nil)
}

func collectionFromSchemaPath(path string) string {
	// /api/collections/{name}/schema
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 {
		return parts[2]
	}
	return ""
}

func collectionFromSolrPath(path string) string {
	// /solr/{name}/update or /solr/{name}/select
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := collectionFromSolrPath(r.URL.Path)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		writeErr(w, http.StatusNotFound, "collection not found")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeErr(w, http.StatusBadRequest, "bad request body")
		return
	}

	// Either a single {"delete": {"id": ...}} or a batch of docs.
	var del struct {
		Delete *struct {
			ID string `json:"id"`
		} `json:"delete"`
	}
	if json.Unmarshal(raw, &del) == nil && del.Delete != nil {
		delete(c.docs, del.Delete.ID)
		writeOK(w, nil)
		return
	}

	var docs []map[string]any
	if err := json.Unmarshal(raw, &docs); err != nil {
		var single map[string]any
		if err := json.Unmarshal(raw, &single); err != nil {
			writeErr(w, http.StatusBadRequest, "bad request body")
			return
		}
		docs = []map[string]any{single}
	}

	for _, d := range docs {
		// Like the real engine, accept numeric ids (the registry's) as
		// well as string ids; both are keyed by their string form so a
		// later delete-by-id with the string form finds them.
		var id string
		switch v := d["id"].(type) {
		case string:
			id = v
		case float64:
			id = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if id == "" {
			continue
		}
		existing, ok := c.docs[id]
		if !ok {
			existing = map[string]any{"id": d["id"]}
		}
		for k, v := range d {
			if k == "id" {
				continue
			}
			applyFieldOp(existing, k, v)
		}
		c.docs[id] = existing
	}
	writeOK(w, nil)
}

// applyFieldOp applies an atomic update op ({"set": v}, {"add": v},
// {"remove": v}) or a plain value to field k of doc. Like the real
// engine, remove deletes only the listed values from a multi-valued
// field; an empty remove list is a no-op.
func applyFieldOp(doc map[string]any, k string, v any) {
	op, ok := v.(map[string]any)
	if !ok {
		doc[k] = v
		return
	}
	if val, ok := op["set"]; ok {
		doc[k] = val
		return
	}
	if val, ok := op["add"]; ok {
		existing, _ := doc[k].([]any)
		if items, ok := val.([]any); ok {
			existing = append(existing, items...)
		} else {
			existing = append(existing, val)
		}
		doc[k] = existing
		return
	}
	if val, ok := op["remove"]; ok {
		existing, _ := doc[k].([]any)
		listed := map[any]bool{}
		if items, ok := val.([]any); ok {
			for _, item := range items {
				listed[item] = true
			}
		} else {
			listed[val] = true
		}
		kept := make([]any, 0, len(existing))
		for _, item := range existing {
			if !listed[item] {
				kept = append(kept, item)
			}
		}
		doc[k] = kept
		return
	}
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	name := collectionFromSolrPath(r.URL.Path)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		writeErr(w, http.StatusNotFound, "collection not found")
		return
	}

	q := r.URL.Query()
	matches := matchQuery(c, q.Get("q"))

	sortField, sortDesc := parseSort(q.Get("sort"))
	if sortField != "" {
		sort.SliceStable(matches, func(i, j int) bool {
			less := compareField(matches[i][sortField], matches[j][sortField])
			if sortDesc {
				return less > 0
			}
			return less < 0
		})
	}

	start := 0
	if v := q.Get("start"); v != "" {
		start, _ = strconv.Atoi(v)
	}
	rows := len(matches)
	if v := q.Get("rows"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rows = n
		}
	}

	numFound := len(matches)
	if start > len(matches) {
		start = len(matches)
	}
	end := start + rows
	if end > len(matches) || rows < 0 {
		end = len(matches)
	}
	page := matches[start:end]

	fl := q.Get("fl")
	if fl != "" {
		page = projectFields(page, fl)
	}

	writeOK(w, map[string]any{
		"response": map[string]any{
			"numFound": numFound,
			"start":    start,
			"docs":     page,
		},
	})
}

func projectFields(docs []map[string]any, fl string) []map[string]any {
	fields := strings.Split(fl, ",")
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		proj := make(map[string]any, len(fields))
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if v, ok := d[f]; ok {
				proj[f] = v
			}
		}
		out[i] = proj
	}
	return out
}

func parseSort(s string) (field string, desc bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return "", false
	}
	field = parts[0]
	desc = len(parts) > 1 && strings.EqualFold(parts[1], "desc")
	return field, desc
}

func compareField(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := toString(a), toString(b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
