package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/casekit/internal/records"
)

func readRaw(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return nil, false
	}
	return body, true
}

func writeRecord(w http.ResponseWriter, status int, rec *records.Record) {
	w.Header().Set("ETag", `"`+rec.Checksum+`"`)
	writeJSON(w, status, rec)
}

// ListRecords handles GET /api/records/{type}.
//
//	@Summary		List records of a type
//	@Tags			records
//	@Produce		json
//	@Param			type	path		string	true	"Record type"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			sort	query		string	false	"Sort field"	Enums(updated, id)
//	@Success		200		{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/records/{type} [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pageParams(q)
	items, total, err := h.records.List(r.Context(), chi.URLParam(r, "type"), limit, offset, q.Get("sort"))
	if err != nil {
		writeError(w, h.logger, "list records", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: items, Total: total})
}

// CreateRecord handles POST /api/records/{type}.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	body, ok := readRaw(w, r)
	if !ok {
		return
	}
	rec, err := h.records.Create(r.Context(), chi.URLParam(r, "type"), body)
	if err != nil {
		writeError(w, h.logger, "create record", err)
		return
	}
	writeRecord(w, http.StatusCreated, rec)
}

// GetRecord handles GET /api/records/{type}/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "get record", err)
		return
	}
	writeRecord(w, http.StatusOK, rec)
}

// PutRecord handles PUT /api/records/{type}/{id}.
//
//	@Summary		Create or replace a record with optimistic concurrency
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			type		path		string	true	"Record type"
//	@Param			id			path		string	true	"Record id"
//	@Param			If-Match	header		string	false	"SHA-256 checksum for optimistic concurrency"
//	@Success		200			{object}	records.Record
//	@Success		201			{object}	records.Record
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{type}/{id} [put]
func (h *Handler) PutRecord(w http.ResponseWriter, r *http.Request) {
	body, ok := readRaw(w, r)
	if !ok {
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	rec, created, err := h.records.Put(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"), body, ifMatch)
	if err != nil {
		writeError(w, h.logger, "put record", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeRecord(w, status, rec)
}

// DeleteRecord handles DELETE /api/records/{type}/{id}.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Delete(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, "delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
