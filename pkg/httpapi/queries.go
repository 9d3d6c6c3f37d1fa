package httpapi

import "net/http"

// handleQ1 returns doctpc_M of a document by id.
func (s *Server) handleQ1(w http.ResponseWriter, r *http.Request) {
	corpus, ok := requireParam(w, s.Log, r, "corpus")
	if !ok {
		return
	}
	model, ok := requireParam(w, s.Log, r, "model")
	if !ok {
		return
	}
	docID, ok := requireParam(w, s.Log, r, "doc_id")
	if !ok {
		return
	}
	payload, err := s.Query.DocTopic(r.Context(), corpus, docID, model)
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"doctpc": payload})
}

// handleQ2 lists corpus metadata field names, minus the denylist and any
// doctpc_* model payload fields.
func (s *Server) handleQ2(w http.ResponseWriter, r *http.Request) {
	corpus, ok := requireParam(w, s.Log, r, "corpus")
	if !ok {
		return
	}
	fields, err := s.Query.CorpusFields(r.Context(), corpus, s.Denylist)
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

// handleQ3 returns a collection's document count.
func (s *Server) handleQ3(w http.ResponseWriter, r *http.Request) {
	collection, ok := requireParam(w, s.Log, r, "collection")
	if !ok {
		return
	}
	count, err := s.Query.Count(r.Context(), collection)
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// handleQ4 returns docs whose doctpc_M weight on a topic is >= a threshold.
func (s *Server) handleQ4(w http.ResponseWriter, r *http.Request) {
	corpus, ok := requireParam(w, s.Log, r, "corpus")
	if !ok {
		return
	}
	model, ok := requireParam(w, s.Log, r, "model")
	if !ok {
		return
	}
	topic, ok := atoiParam(w, s.Log, r, "topic")
	if !ok {
		return
	}
	threshold, ok := atoiParam(w, s.Log, r, "threshold")
	if !ok {
		return
	}
	res, err := s.Query.DocsAboveThreshold(r.Context(), corpus, model, topic, threshold, queryParams(r))
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeResult(w, res)
}

// handleQ5 returns docs similar to a document by id.
func (s *Server) handleQ5(w http.ResponseWriter, r *http.Request) {
	corpus, ok := requireParam(w, s.Log, r, "corpus")
	if !ok {
		return
	}
	model, ok := requireParam(w, s.Log, r, "model")
	if !ok {
		return
	}
	docID, ok := requireParam(w, s.Log, r, "doc_id")
	if !ok {
		return
	}
	res, err := s.Query.SimilarToDoc(r.Context(), corpus, model, docID, queryParams(r))
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeResult(w, res)
}

// handleQ6 returns a document's metadata fields.
func (s *Server) handleQ6(w http.ResponseWriter, r *http.Request) {
	corpus, ok := requireParam(w, s.Log, r, "corpus")
	if !ok {
		return
	}
	docID, ok := requireParam(w, s.Log, r, "doc_id")
	if !ok {
		return
	}
	doc, err := s.Query.Metadata(r.Context(), corpus, docID, s.Denylist)
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleQ7 does a substring match on title.
func (s *Server) handleQ7(w http.ResponseWriter, r *http.Request) {
	corpus, ok := requireParam(w, s.Log, r, "corpus")
	if !ok {
		return
	}
	substring, ok := requireParam(w, s.Log, r, "string")
	if !ok {
		return
	}
	res, err := s.Query.SearchTitle(r.Context(), corpus, substring, queryParams(r))
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeResult(w, res)
}

// handleQ8 returns every topic's label.
func (s *Server) handleQ8(w http.ResponseWriter, r *http.Request) {
	model, ok := requireParam(w, s.Log, r, "model")
	if !ok {
		return
	}
	res, err := s.Query.TopicLabels(r.Context(), model, queryParams(r))
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeResult(w, res)
}

// handleQ9 returns the top documents of a topic.
func (s *Server) handleQ9(w http.ResponseWriter, r *http.Request) {
	corpus, ok := requireParam(w, s.Log, r, "corpus")
	if !ok {
		return
	}
	model, ok := requireParam(w, s.Log, r, "model")
	if !ok {
		return
	}
	topic, ok := atoiParam(w, s.Log, r, "topic")
	if !ok {
		return
	}
	res, err := s.Query.TopDocsOfTopic(r.Context(), corpus, model, topic, queryParams(r))
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeResult(w, res)
}

// handleQ10 returns full per-topic info for every topic in a model.
func (s *Server) handleQ10(w http.ResponseWriter, r *http.Request) {
	model, ok := requireParam(w, s.Log, r, "model")
	if !ok {
		return
	}
	res, err := s.Query.TopicInfo(r.Context(), model, queryParams(r))
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeResult(w, res)
}

// handleQ11 returns a topic's betas payload.
func (s *Server) handleQ11(w http.ResponseWriter, r *http.Request) {
	model, ok := requireParam(w, s.Log, r, "model")
	if !ok {
		return
	}
	topic, ok := atoiParam(w, s.Log, r, "topic")
	if !ok {
		return
	}
	betas, err := s.Query.TopicBetas(r.Context(), model, topic)
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"betas": betas})
}

// handleQ12 returns the topics most correlated with a given topic.
func (s *Server) handleQ12(w http.ResponseWriter, r *http.Request) {
	model, ok := requireParam(w, s.Log, r, "model")
	if !ok {
		return
	}
	topic, ok := atoiParam(w, s.Log, r, "topic")
	if !ok {
		return
	}
	res, err := s.Query.CorrelatedTopics(r.Context(), model, topic, queryParams(r))
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeResult(w, res)
}

// handleQ14 returns docs similar to a caller-supplied encoded payload.
func (s *Server) handleQ14(w http.ResponseWriter, r *http.Request) {
	corpus, ok := requireParam(w, s.Log, r, "corpus")
	if !ok {
		return
	}
	model, ok := requireParam(w, s.Log, r, "model")
	if !ok {
		return
	}
	payload, ok := requireParam(w, s.Log, r, "payload")
	if !ok {
		return
	}
	res, err := s.Query.SimilarToText(r.Context(), corpus, model, payload, queryParams(r))
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeResult(w, res)
}

// handleQ15 returns the lemmas of a document by id.
func (s *Server) handleQ15(w http.ResponseWriter, r *http.Request) {
	corpus, ok := requireParam(w, s.Log, r, "corpus")
	if !ok {
		return
	}
	docID, ok := requireParam(w, s.Log, r, "doc_id")
	if !ok {
		return
	}
	lemmas, err := s.Query.Lemmas(r.Context(), corpus, docID)
	if err != nil {
		WriteError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"lemmas": lemmas})
}
