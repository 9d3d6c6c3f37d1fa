// Package httpapi is the thin HTTP front-end over the indexer and query
// layers: it decodes requests, calls into pkg/indexer and pkg/query, and
// maps the returned error kind to a status code in exactly one place.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/cognicore/ewbmediator/pkg/engine"
	"github.com/cognicore/ewbmediator/pkg/indexer"
	"github.com/cognicore/ewbmediator/pkg/mediatorerr"
	"github.com/cognicore/ewbmediator/pkg/query"
)

// Server wires the HTTP surface to the mediator's internals.
type Server struct {
	Indexer  *indexer.Indexer
	Query    *query.Executor
	Engine   *engine.Client
	Log      *slog.Logger
	Denylist []string
}

// Handler builds the net/http.ServeMux routing table for s.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /corpora/index", s.handleCorporaIndex)
	mux.HandleFunc("POST /corpora/delete", s.handleCorporaDelete)
	mux.HandleFunc("POST /models/index", s.handleModelsIndex)
	mux.HandleFunc("POST /models/delete", s.handleModelsDelete)

	mux.HandleFunc("GET /collections", s.handleCollectionsList)
	mux.HandleFunc("POST /collections/create", s.handleCollectionsCreate)
	mux.HandleFunc("POST /collections/delete", s.handleCollectionsDelete)

	mux.HandleFunc("GET /query", s.handleRawQuery)

	mux.HandleFunc("GET /queries/Q1", s.handleQ1)
	mux.HandleFunc("GET /queries/Q2", s.handleQ2)
	mux.HandleFunc("GET /queries/Q3", s.handleQ3)
	mux.HandleFunc("GET /queries/Q4", s.handleQ4)
	mux.HandleFunc("GET /queries/Q5", s.handleQ5)
	mux.HandleFunc("GET /queries/Q6", s.handleQ6)
	mux.HandleFunc("GET /queries/Q7", s.handleQ7)
	mux.HandleFunc("GET /queries/Q8", s.handleQ8)
	mux.HandleFunc("GET /queries/Q9", s.handleQ9)
	mux.HandleFunc("GET /queries/Q10", s.handleQ10)
	mux.HandleFunc("GET /queries/Q11", s.handleQ11)
	mux.HandleFunc("GET /queries/Q12", s.handleQ12)
	mux.HandleFunc("GET /queries/Q14", s.handleQ14)
	mux.HandleFunc("GET /queries/Q15", s.handleQ15)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Healthy(r.Context()); err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pathRequest struct {
	CorpusPath string `json:"corpus_path"`
	ModelPath  string `json:"model_path"`
}

func (s *Server) handleCorporaIndex(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeJSON(w, s.Log, r, &req) {
		return
	}
	if req.CorpusPath == "" {
		WriteError(w, s.Log, missingParam("corpus_path"))
		return
	}
	if err := s.Indexer.IndexCorpus(r.Context(), req.CorpusPath); err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "indexed"})
}

func (s *Server) handleCorporaDelete(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeJSON(w, s.Log, r, &req) {
		return
	}
	if req.CorpusPath == "" {
		WriteError(w, s.Log, missingParam("corpus_path"))
		return
	}
	if err := s.Indexer.DeleteCorpus(r.Context(), req.CorpusPath); err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleModelsIndex(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeJSON(w, s.Log, r, &req) {
		return
	}
	if req.ModelPath == "" {
		WriteError(w, s.Log, missingParam("model_path"))
		return
	}
	if err := s.Indexer.IndexModel(r.Context(), req.ModelPath); err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "indexed"})
}

func (s *Server) handleModelsDelete(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decodeJSON(w, s.Log, r, &req) {
		return
	}
	if req.ModelPath == "" {
		WriteError(w, s.Log, missingParam("model_path"))
		return
	}
	if err := s.Indexer.DeleteModel(r.Context(), req.ModelPath); err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCollectionsList(w http.ResponseWriter, r *http.Request) {
	names, resp, err := s.Engine.ListCollections(r.Context())
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	if resp.Status != http.StatusOK {
		WriteError(w, s.Log, engineStatusError(resp.Status, resp.Message))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": names})
}

type collectionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCollectionsCreate(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if !decodeJSON(w, s.Log, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, s.Log, missingParam("name"))
		return
	}
	resp, err := s.Engine.CreateCollection(r.Context(), req.Name, "", 1, 1)
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	if resp.Status != http.StatusOK {
		WriteError(w, s.Log, engineStatusError(resp.Status, resp.Message))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "created"})
}

func (s *Server) handleCollectionsDelete(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if !decodeJSON(w, s.Log, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, s.Log, missingParam("name"))
		return
	}
	resp, err := s.Engine.DeleteCollection(r.Context(), req.Name)
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	if resp.Status != http.StatusOK {
		WriteError(w, s.Log, engineStatusError(resp.Status, resp.Message))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleRawQuery is the generic "/query" passthrough: it proxies a
// select against the named collection, bypassing the catalogue. It
// exists alongside /queries/Qk for callers that already know the exact
// engine query string they want.
func (s *Server) handleRawQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	collection := q.Get("collection")
	if collection == "" {
		WriteError(w, s.Log, missingParam("collection"))
		return
	}
	params := engine.SelectParams{
		Q:     orDefault(q.Get("q"), "*:*"),
		FQ:    q.Get("fq"),
		FL:    q.Get("fl"),
		Sort:  q.Get("sort"),
		Start: q.Get("start"),
		Rows:  q.Get("rows"),
	}
	resp, err := s.Engine.Select(r.Context(), collection, params)
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	if resp.Status != http.StatusOK {
		WriteError(w, s.Log, engineStatusError(resp.Status, resp.Message))
		return
	}
	if path := q.Get("results_file_path"); path != "" {
		if err := writeResultsFile(path, resp.Docs); err != nil {
			WriteError(w, s.Log, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"docs": resp.Docs, "num_found": resp.NumFound})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func writeResultsFile(path string, docs []map[string]any) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		// A failed results write is a server-side fault (500), not an
		// engine condition, so it carries no sentinel kind.
		return fmt.Errorf("writing results to %s: %v", path, err)
	}
	return nil
}

func missingParam(name string) error {
	return &mediatorerr.RequestError{Kind: mediatorerr.ErrMalformedInput, Param: name}
}

func engineStatusError(status int, message string) error {
	switch {
	case status == http.StatusConflict:
		return &mediatorerr.RequestError{Kind: mediatorerr.ErrAlreadyExists, Param: message}
	case status == http.StatusNotFound:
		return &mediatorerr.RequestError{Kind: mediatorerr.ErrNotFound, Param: message}
	case status >= 500:
		return &mediatorerr.RequestError{Kind: mediatorerr.ErrEngineTransient, Param: message}
	default:
		return &mediatorerr.RequestError{Kind: mediatorerr.ErrMalformedInput, Param: message}
	}
}

// queryParams reads the pagination/persistence options common to every
// /queries/Qk handler out of the request's query string.
func queryParams(r *http.Request) query.Params {
	q := r.URL.Query()
	return query.Params{
		Start:           q.Get("start"),
		Rows:            q.Get("rows"),
		ResultsFilePath: q.Get("results_file_path"),
	}
}

func atoiParam(w http.ResponseWriter, log *slog.Logger, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		WriteError(w, log, missingParam(name))
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		WriteError(w, log, &mediatorerr.RequestError{Kind: mediatorerr.ErrMalformedInput, Param: name})
		return 0, false
	}
	return n, true
}

func requireParam(w http.ResponseWriter, log *slog.Logger, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		WriteError(w, log, missingParam(name))
		return "", false
	}
	return v, true
}

func writeResult(w http.ResponseWriter, res query.Result) {
	writeJSON(w, http.StatusOK, map[string]any{"docs": res.Docs, "num_found": res.NumFound})
}

func decodeJSON(w http.ResponseWriter, log *slog.Logger, r *http.Request, v any) bool {
	if r.Body == nil {
		WriteError(w, log, &mediatorerr.RequestError{Kind: mediatorerr.ErrMalformedInput, Param: "body"})
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, log, fmtDecodeErr(err))
		return false
	}
	return true
}

func fmtDecodeErr(err error) error {
	return &mediatorerr.RequestError{Kind: mediatorerr.ErrMalformedInput, Param: "body", Cause: err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err's sentinel kind (mediatorerr) to the matching HTTP
// status and writes a JSON error body. This is the single place the
// error-kind-to-status mapping lives.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	status, param := classify(err)
	if log != nil {
		log.Error("request failed", "error", err, "status", status)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "param": param})
}

func classify(err error) (status int, param string) {
	var reqErr *mediatorerr.RequestError
	if errors.As(err, &reqErr) {
		param = reqErr.Param
	}
	switch {
	case errors.Is(err, mediatorerr.ErrConfig):
		return http.StatusInternalServerError, param
	case errors.Is(err, mediatorerr.ErrAlreadyExists):
		return http.StatusConflict, param
	case errors.Is(err, mediatorerr.ErrNotFound):
		return http.StatusNotFound, param
	case errors.Is(err, mediatorerr.ErrInvariantViolation):
		return http.StatusInternalServerError, param
	case errors.Is(err, mediatorerr.ErrEngineTransient):
		return http.StatusServiceUnavailable, param
	case errors.Is(err, mediatorerr.ErrMalformedInput):
		return http.StatusBadRequest, param
	default:
		return http.StatusInternalServerError, param
	}
}
