/*
handlers.go - HTTP handlers for the hour bank

PURPOSE:
  Exposes ledger.Service over REST. Handlers decode the request, call the
  service and encode the result; every rule lives in the ledger package.

ENDPOINTS:
  Collaborators:
    GET    /api/collaborators                      List collaborators
    POST   /api/collaborators                      Create or update one
    GET    /api/collaborators/{id}/balance         Balance (?start=&end=)
    GET    /api/collaborators/{id}/entries         Rows (?type=&origin=&start=&end=&limit=)
    POST   /api/collaborators/{id}/verify-convert  Grant pending days, apply ceiling
    POST   /api/collaborators/{id}/reconcile       Run reconciliation now

  Entries:
    POST   /api/entries                Append
    PUT    /api/entries/{id}           Edit
    DELETE /api/entries/{id}           Delete
    GET    /api/entries/{id}/history   Audit trail

  Bulk:
    POST   /api/bulk                       Create
    GET    /api/bulk/{id}/entries          Rows written by the bulk
    GET    /api/bulk/{id}/corrections      Corrections of the bulk
    POST   /api/bulk/{id}/corrections      Correct the bulk
    GET    /api/bulk/{id}/lineage          Correction chain back to the root

ERROR HANDLING:
  - 400: ValidationError (with field), malformed body or parameters
  - 404: entry, collaborator or bulk not found
  - 500: reconciliation failure and anything else
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/multimax/hourbank/ledger"
	"github.com/multimax/hourbank/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// AdminStore is the part of the store the ledger service does not cover:
// reference data owned by the back-office and the run log.
type AdminStore interface {
	Collaborators(ctx context.Context) ([]ledger.Collaborator, error)
	SaveCollaborator(ctx context.Context, c ledger.Collaborator) error
	ListHolidays(ctx context.Context) ([]ledger.Holiday, error)
	SaveHoliday(ctx context.Context, h ledger.Holiday) error
	DeleteHoliday(ctx context.Context, date ledger.Date) error
	ReconciliationRuns(ctx context.Context, limit int) ([]ledger.Run, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	service *ledger.Service
	admin   AdminStore
	reports *report.Builder
	logger  *zap.Logger
}

func NewHandler(service *ledger.Service, admin AdminStore, reports *report.Builder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, admin: admin, reports: reports, logger: logger}
}

// =============================================================================
// COLLABORATOR HANDLERS
// =============================================================================

func (h *Handler) ListCollaborators(w http.ResponseWriter, r *http.Request) {
	collaborators, err := h.admin.Collaborators(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]CollaboratorDTO, len(collaborators))
	for i, c := range collaborators {
		dtos[i] = toCollaboratorDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveCollaborator(w http.ResponseWriter, r *http.Request) {
	var req CollaboratorDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID <= 0 {
		h.writeServiceError(w, r, &ledger.ValidationError{Field: "id", Reason: "must be positive"})
		return
	}
	if req.Name == "" {
		h.writeServiceError(w, r, &ledger.ValidationError{Field: "name", Reason: "is required"})
		return
	}

	c := ledger.Collaborator{ID: ledger.CollaboratorID(req.ID), Name: req.Name, Role: req.Role, Active: req.Active}
	if err := h.admin.SaveCollaborator(r.Context(), c); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCollaboratorDTO(c))
}

// GetBalance returns the balance snapshot of one collaborator.
// GET /api/collaborators/{id}/balance?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.collaboratorParam(w, r)
	if !ok {
		return
	}
	window, err := windowFromQuery(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	snap, err := h.service.GetBalance(r.Context(), id, window)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(snap))
}

// ListEntries returns a collaborator's rows, newest first.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := h.collaboratorParam(w, r)
	if !ok {
		return
	}
	q, err := queryFromRequest(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	q.CollaboratorID = id

	entries, err := h.service.Entries(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

func (h *Handler) VerifyAndConvert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.collaboratorParam(w, r)
	if !ok {
		return
	}
	out, err := h.service.VerifyAndConvert(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversionDTO{
		CollaboratorID: int64(out.CollaboratorID),
		ConvertedDays:  out.ConvertedDays,
		Capped:         out.Capped,
		Shortfall:      out.Shortfall,
		NewBalance:     out.NewBalance,
	})
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.collaboratorParam(w, r)
	if !ok {
		return
	}
	out, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileDTO{
		CollaboratorID: int64(out.CollaboratorID),
		Desired:        out.Desired,
		Actual:         out.Actual,
		Granted:        out.Granted,
		CreditsRemoved: out.CreditsRemoved,
		DebitsRemoved:  out.DebitsRemoved,
		Compensations:  out.Compensations,
	})
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// AppendEntry records a new row and reconciles when it carries hours.
// POST /api/entries
func (h *Handler) AppendEntry(w http.ResponseWriter, r *http.Request) {
	var req AppendEntryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	id, err := h.service.AppendEntry(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryCreatedDTO{ID: int64(id)})
}

// EditEntry changes an existing row.
// PUT /api/entries/{id}
func (h *Handler) EditEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	var req EditEntryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.service.EditEntry(r.Context(), ledger.EntryID(id), patch); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteEntry removes a row.
// DELETE /api/entries/{id}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteEntry(r.Context(), ledger.EntryID(id)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) EntryHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	changes, err := h.service.History(r.Context(), ledger.EntryID(id))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]EntryChangeDTO, len(changes))
	for i, c := range changes {
		dtos[i] = toEntryChangeDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BULK HANDLERS
// =============================================================================

func (h *Handler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.toLedger()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	op, err := h.service.CreateBulk(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBulkDTO(op))
}

func (h *Handler) CorrectBulk(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	var req BulkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.toLedger()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	op, err := h.service.CorrectBulk(r.Context(), ledger.BulkID(id), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBulkDTO(op))
}

func (h *Handler) BulkEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.service.Entries(r.Context(), ledger.Query{BulkID: ledger.BulkID(id)})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

func (h *Handler) ListBulkCorrections(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	ops, err := h.service.BulkCorrections(r.Context(), ledger.BulkID(id))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBulkDTOs(ops))
}

func (h *Handler) BulkLineage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "id")
	if !ok {
		return
	}
	ops, err := h.service.BulkLineage(r.Context(), ledger.BulkID(id))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBulkDTOs(ops))
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.admin.ListHolidays(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = HolidayDTO{Date: hol.Date.String(), Name: hol.Name, Recurring: hol.Recurring}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayDTO
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := parseDateField("date", req.Date)
	if err == nil && date.IsZero() {
		err = &ledger.ValidationError{Field: "date", Reason: "is required"}
	}
	if err == nil && req.Name == "" {
		err = &ledger.ValidationError{Field: "name", Reason: "is required"}
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	hol := ledger.Holiday{Date: date, Name: req.Name, Recurring: req.Recurring}
	if err := h.admin.SaveHoliday(r.Context(), hol); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateField("date", chi.URLParam(r, "date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.admin.DeleteHoliday(r.Context(), date); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPORTS AND RUNS
// =============================================================================

// BalanceReport returns the balance of every active collaborator.
// GET /api/reports/balances?start=&end=
func (h *Handler) BalanceReport(w http.ResponseWriter, r *http.Request) {
	window, err := windowFromQuery(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rep, err := h.reports.Build(r.Context(), window)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(rep))
}

func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeServiceError(w, r, &ledger.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := h.admin.ReconciliationRuns(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.writeServiceError(w, r, &ledger.ValidationError{Field: name, Reason: "must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Handler) collaboratorParam(w http.ResponseWriter, r *http.Request) (ledger.CollaboratorID, bool) {
	id, ok := h.idParam(w, r, "id")
	return ledger.CollaboratorID(id), ok
}

func parseDateField(field, s string) (ledger.Date, error) {
	if s == "" {
		return ledger.Date{}, nil
	}
	d, err := ledger.ParseDate(s)
	if err != nil {
		return ledger.Date{}, &ledger.ValidationError{Field: field, Reason: "must be YYYY-MM-DD"}
	}
	return d, nil
}

func windowFromQuery(r *http.Request) (ledger.Window, error) {
	var w ledger.Window
	var err error
	if w.Start, err = parseDateField("start", r.URL.Query().Get("start")); err != nil {
		return w, err
	}
	if w.End, err = parseDateField("end", r.URL.Query().Get("end")); err != nil {
		return w, err
	}
	return w, nil
}

func queryFromRequest(r *http.Request) (ledger.Query, error) {
	var q ledger.Query
	var err error
	if q.Window, err = windowFromQuery(r); err != nil {
		return q, err
	}
	params := r.URL.Query()
	if raw := params.Get("type"); raw != "" {
		if q.Type, err = ledger.ParseRecordType(raw); err != nil {
			return q, err
		}
	}
	if raw := params.Get("origin"); raw != "" {
		if q.Origin, err = ledger.ParseOrigin(raw); err != nil {
			return q, err
		}
	}
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return q, &ledger.ValidationError{Field: "limit", Reason: "must be a positive integer"}
		}
		q.Limit = n
	}
	return q, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// writeServiceError maps ledger errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr   *ledger.ValidationError
		balErr *ledger.InsufficientBalanceError
	)
	switch {
	case ledger.IsReconciliation(err):
		h.logger.Error("reconciliation failed",
			zap.String("correlation_id", GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: vErr.Reason, Field: vErr.Field})
	case errors.As(err, &balErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Insufficient balance", Field: "days", Details: balErr.Error()})
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
