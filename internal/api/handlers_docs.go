package api

import (
	"net/http"
	"strconv"

	"github.com/dgallion1/papergest/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxDocumentList = 500

// handleListDocuments lists acquired documents for a subject, ordered with
// topic-hinted entries first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subject := q.Get("subject")
	if subject == "" {
		jsonError(w, "subject query parameter is required", http.StatusBadRequest)
		return
	}
	limit := maxDocumentList
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	docs := make([]store.Entry, 0)
	for e := range s.store.List(subject, q.Get("topic")) {
		docs = append(docs, e)
		if len(docs) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	e, ok := s.store.Get(chi.URLParam(r, "fingerprint"))
	if !ok {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
