package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/hupe1980/hnswfield"
	"github.com/hupe1980/hnswfield/docstore"
	"github.com/hupe1980/hnswfield/engine"
	"github.com/hupe1980/hnswfield/model"
)

var errVectorOrText = errors.New("exactly one of vector and text must be set")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Fields: s.db.Fields()})
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	stats := s.db.Stats()
	out := make([]FieldResponse, len(stats))
	for i, st := range stats {
		out[i] = NewFieldResponse(st)
	}
	s.respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]

	var req InsertRequest
	if err := decode(w, r, &req); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if (len(req.Vector) == 0) == (req.Text == "") {
		s.respondWithError(w, r, http.StatusBadRequest, errVectorOrText)
		return
	}

	rec := docstore.Record{Fields: req.Fields, Attributes: req.Attributes}
	var (
		id  model.ID
		err error
	)
	if req.Text != "" {
		id, err = s.db.InsertText(r.Context(), field, req.Text, rec)
	} else {
		id, err = s.db.InsertDocument(r.Context(), field, req.Vector, rec)
	}
	if err != nil {
		s.respondWithError(w, r, statusFor(err), err)
		return
	}
	s.respondWithJSON(w, http.StatusCreated, InsertResponse{ID: id})
}

func (s *Server) handleGetVector(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	field := vars["field"]
	raw, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, fmt.Errorf("invalid id %q", vars["id"]))
		return
	}
	id := model.ID(raw)

	vec, err := s.db.Vector(field, id)
	if err != nil {
		s.respondWithError(w, r, statusFor(err), err)
		return
	}
	resp := VectorResponse{ID: id, Vector: vec}
	rec, err := s.db.Get(r.Context(), field, id)
	switch {
	case err == nil:
		resp.Fields = rec.Fields
		resp.Attributes = rec.Attributes
	case errors.Is(err, hnswfield.ErrNotFound):
	default:
		s.respondWithError(w, r, statusFor(err), err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]

	var req SearchRequest
	if err := decode(w, r, &req); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if (len(req.Vector) == 0) == (req.Text == "") {
		s.respondWithError(w, r, http.StatusBadRequest, errVectorOrText)
		return
	}
	mode, err := engine.ParseMode(req.Mode)
	if err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, err)
		return
	}

	var sb *hnswfield.SearchBuilder
	if req.Text != "" {
		sb = s.db.SearchText(field, req.Text)
	} else {
		sb = s.db.Search(field, req.Vector)
	}
	if req.K != 0 {
		sb.KNN(req.K)
	}
	sb.EF(req.EF).Mode(mode).Where(req.Filters...)
	if req.WithoutRecords {
		sb.WithoutRecords()
	}

	resp, err := sb.Run(r.Context())
	if err != nil {
		s.respondWithError(w, r, statusFor(err), err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, NewSearchResponse(resp))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Save(r.Context()); err != nil {
		s.respondWithError(w, r, statusFor(err), err)
		return
	}
	m := s.db.Manifest()
	s.respondWithJSON(w, http.StatusOK, SaveResponse{Manifest: m.ID, Fields: len(m.Fields)})
}
