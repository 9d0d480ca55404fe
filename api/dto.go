/*
dto.go - JSON request and response shapes

NAMING CONVENTION:
  - *DTO:     response types returned to clients
  - *Request: request body types from clients

Dates travel as YYYY-MM-DD strings, hours and money as decimal strings
(numbers are accepted on input). Validation is done by the ledger service,
not here.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/multimax/hourbank/ledger"
	"github.com/multimax/hourbank/report"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

type CollaboratorDTO struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

func toCollaboratorDTO(c ledger.Collaborator) CollaboratorDTO {
	return CollaboratorDTO{ID: int64(c.ID), Name: c.Name, Role: c.Role, Active: c.Active}
}

// =============================================================================
// ENTRIES
// =============================================================================

type EntryDTO struct {
	ID             int64            `json:"id"`
	CollaboratorID int64            `json:"collaborator_id"`
	Date           string           `json:"date"`
	RecordType     string           `json:"record_type"`
	Hours          *decimal.Decimal `json:"hours,omitempty"`
	Days           *int             `json:"days,omitempty"`
	AmountPaid     *decimal.Decimal `json:"amount_paid,omitempty"`
	RatePerDay     *decimal.Decimal `json:"rate_per_day,omitempty"`
	Origin         string           `json:"origin"`
	Notes          string           `json:"notes,omitempty"`
	CreatedBy      string           `json:"created_by,omitempty"`
	CreatedAt      string           `json:"created_at,omitempty"`
	BulkID         int64            `json:"bulk_id,omitempty"`
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	dto := EntryDTO{
		ID:             int64(e.ID),
		CollaboratorID: int64(e.CollaboratorID),
		Date:           e.Date.String(),
		RecordType:     string(e.Type),
		Origin:         string(e.Origin),
		Notes:          e.Notes,
		CreatedBy:      e.CreatedBy,
		BulkID:         int64(e.BulkID),
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	switch e.Type {
	case ledger.RecordHours:
		h := e.Hours
		dto.Hours = &h
	case ledger.RecordConversion:
		d, a, r := e.Days, e.AmountPaid, e.RatePerDay
		dto.Days, dto.AmountPaid, dto.RatePerDay = &d, &a, &r
	default:
		d := e.Days
		dto.Days = &d
	}
	return dto
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

// AppendEntryRequest is the body of POST /api/entries.
type AppendEntryRequest struct {
	CollaboratorID int64            `json:"collaborator_id"`
	Date           string           `json:"date"`
	RecordType     string           `json:"record_type"`
	Hours          decimal.Decimal  `json:"hours"`
	Days           int              `json:"days"`
	AmountPaid     *decimal.Decimal `json:"amount_paid"`
	RatePerDay     *decimal.Decimal `json:"rate_per_day"`
	Origin         string           `json:"origin"`
	Notes          string           `json:"notes"`
}

func (req AppendEntryRequest) toInput() (ledger.EntryInput, error) {
	in := ledger.EntryInput{
		CollaboratorID: ledger.CollaboratorID(req.CollaboratorID),
		Hours:          req.Hours,
		Days:           req.Days,
		AmountPaid:     req.AmountPaid,
		RatePerDay:     req.RatePerDay,
		Notes:          req.Notes,
	}
	var err error
	if in.Type, err = ledger.ParseRecordType(req.RecordType); err != nil {
		return in, err
	}
	if in.Origin, err = ledger.ParseOrigin(req.Origin); err != nil {
		return in, err
	}
	if in.Date, err = parseDateField("date", req.Date); err != nil {
		return in, err
	}
	return in, nil
}

// EditEntryRequest is the body of PUT /api/entries/{id}. Absent fields are
// left unchanged.
type EditEntryRequest struct {
	CollaboratorID *int64           `json:"collaborator_id"`
	Date           *string          `json:"date"`
	RecordType     *string          `json:"record_type"`
	Hours          *decimal.Decimal `json:"hours"`
	Days           *int             `json:"days"`
	AmountPaid     *decimal.Decimal `json:"amount_paid"`
	RatePerDay     *decimal.Decimal `json:"rate_per_day"`
	Notes          *string          `json:"notes"`
}

func (req EditEntryRequest) toPatch() (ledger.EntryPatch, error) {
	p := ledger.EntryPatch{
		Hours:      req.Hours,
		Days:       req.Days,
		AmountPaid: req.AmountPaid,
		RatePerDay: req.RatePerDay,
		Notes:      req.Notes,
	}
	if req.CollaboratorID != nil {
		id := ledger.CollaboratorID(*req.CollaboratorID)
		p.CollaboratorID = &id
	}
	if req.Date != nil {
		d, err := parseDateField("date", *req.Date)
		if err != nil {
			return p, err
		}
		p.Date = &d
	}
	if req.RecordType != nil {
		rt, err := ledger.ParseRecordType(*req.RecordType)
		if err != nil {
			return p, err
		}
		p.Type = &rt
	}
	return p, nil
}

type EntryCreatedDTO struct {
	ID int64 `json:"id"`
}

type EntryChangeDTO struct {
	EntryID   int64     `json:"entry_id"`
	Action    string    `json:"action"`
	Before    EntryDTO  `json:"before"`
	After     *EntryDTO `json:"after,omitempty"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt string    `json:"changed_at"`
}

func toEntryChangeDTO(c ledger.EntryChange) EntryChangeDTO {
	dto := EntryChangeDTO{
		EntryID:   int64(c.EntryID),
		Action:    c.Action,
		Before:    toEntryDTO(c.Before),
		ChangedBy: c.ChangedBy,
		ChangedAt: c.ChangedAt.Format(time.RFC3339),
	}
	if c.After != nil {
		after := toEntryDTO(*c.After)
		dto.After = &after
	}
	return dto
}

// =============================================================================
// BALANCE AND CONVERSION
// =============================================================================

type BalanceDTO struct {
	CollaboratorID     int64           `json:"collaborator_id"`
	Start              string          `json:"start,omitempty"`
	End                string          `json:"end,omitempty"`
	TotalHours         decimal.Decimal `json:"total_hours"`
	DaysFromHours      int             `json:"days_from_hours"`
	ResidualHours      decimal.Decimal `json:"residual_hours"`
	ManualCredits      int             `json:"manual_credits"`
	AutoCredits        int             `json:"auto_credits"`
	AvailableCredits   int             `json:"available_credits"`
	UsedDays           int             `json:"used_days"`
	RawConversions     int             `json:"raw_conversions"`
	AppliedConversions int             `json:"applied_conversions"`
	BalanceDays        int             `json:"balance_days"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
}

func toBalanceDTO(s ledger.BalanceSnapshot) BalanceDTO {
	return BalanceDTO{
		CollaboratorID:     int64(s.CollaboratorID),
		Start:              s.Window.Start.String(),
		End:                s.Window.End.String(),
		TotalHours:         s.TotalHours,
		DaysFromHours:      s.DaysFromHours,
		ResidualHours:      s.ResidualHours,
		ManualCredits:      s.ManualCredits,
		AutoCredits:        s.AutoCredits,
		AvailableCredits:   s.AvailableCredits,
		UsedDays:           s.UsedDays,
		RawConversions:     s.RawConversions,
		AppliedConversions: s.AppliedConversions,
		BalanceDays:        s.BalanceDays,
		AmountPaid:         s.AmountPaid,
	}
}

type ConversionDTO struct {
	CollaboratorID int64 `json:"collaborator_id"`
	ConvertedDays  int   `json:"converted_days"`
	Capped         bool  `json:"capped"`
	Shortfall      int   `json:"shortfall"`
	NewBalance     int   `json:"new_balance"`
}

type ReconcileDTO struct {
	CollaboratorID int64 `json:"collaborator_id"`
	Desired        int   `json:"desired"`
	Actual         int   `json:"actual"`
	Granted        int   `json:"granted"`
	CreditsRemoved int   `json:"credits_removed"`
	DebitsRemoved  int   `json:"debits_removed"`
	Compensations  int   `json:"compensations"`
}

// =============================================================================
// BULK OPERATIONS
// =============================================================================

// BulkRequest is the body of POST /api/bulk and POST /api/bulk/{id}/corrections.
type BulkRequest struct {
	Kind            string          `json:"kind"`
	RecordType      string          `json:"record_type"`
	Hours           decimal.Decimal `json:"hours"`
	Days            int             `json:"days"`
	Date            string          `json:"date"`
	CollaboratorIDs []int64         `json:"collaborator_ids"`
	Notes           string          `json:"notes"`
}

func (req BulkRequest) toLedger() (ledger.BulkRequest, error) {
	out := ledger.BulkRequest{
		Hours: req.Hours,
		Days:  req.Days,
		Notes: req.Notes,
	}
	var err error
	if out.Kind, err = ledger.ParseBulkKind(req.Kind); err != nil {
		return out, err
	}
	if req.RecordType == "" {
		out.Type = ledger.RecordHours
	} else if out.Type, err = ledger.ParseRecordType(req.RecordType); err != nil {
		return out, err
	}
	if out.Date, err = parseDateField("date", req.Date); err != nil {
		return out, err
	}
	for _, id := range req.CollaboratorIDs {
		out.CollaboratorIDs = append(out.CollaboratorIDs, ledger.CollaboratorID(id))
	}
	return out, nil
}

type BulkOperationDTO struct {
	ID                 int64            `json:"id"`
	Kind               string           `json:"kind"`
	RecordType         string           `json:"record_type"`
	Hours              *decimal.Decimal `json:"hours,omitempty"`
	Days               int              `json:"days,omitempty"`
	Date               string           `json:"date"`
	Notes              string           `json:"notes,omitempty"`
	CreatedBy          string           `json:"created_by,omitempty"`
	CreatedAt          string           `json:"created_at,omitempty"`
	TotalCollaborators int              `json:"total_collaborators"`
	CorrectionOf       int64            `json:"correction_of_id,omitempty"`
}

func toBulkDTO(op ledger.BulkOperation) BulkOperationDTO {
	dto := BulkOperationDTO{
		ID:                 int64(op.ID),
		Kind:               string(op.Kind),
		RecordType:         string(op.Type),
		Days:               op.Days,
		Date:               op.Date.String(),
		Notes:              op.Notes,
		CreatedBy:          op.CreatedBy,
		TotalCollaborators: op.TotalCollaborators,
		CorrectionOf:       int64(op.CorrectionOf),
	}
	if op.Type == ledger.RecordHours {
		h := op.Hours
		dto.Hours = &h
	}
	if !op.CreatedAt.IsZero() {
		dto.CreatedAt = op.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toBulkDTOs(ops []ledger.BulkOperation) []BulkOperationDTO {
	dtos := make([]BulkOperationDTO, len(ops))
	for i, op := range ops {
		dtos[i] = toBulkDTO(op)
	}
	return dtos
}

// =============================================================================
// HOLIDAYS, REPORTS, RUNS
// =============================================================================

type HolidayDTO struct {
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

type ReportLineDTO struct {
	Collaborator CollaboratorDTO `json:"collaborator"`
	Balance      BalanceDTO      `json:"balance"`
}

type ReportDTO struct {
	Start            string          `json:"start,omitempty"`
	End              string          `json:"end,omitempty"`
	Lines            []ReportLineDTO `json:"lines"`
	TotalBalanceDays int             `json:"total_balance_days"`
	TotalAmountPaid  decimal.Decimal `json:"total_amount_paid"`
}

func toReportDTO(r report.Report) ReportDTO {
	dto := ReportDTO{
		Start:            r.Window.Start.String(),
		End:              r.Window.End.String(),
		Lines:            make([]ReportLineDTO, len(r.Lines)),
		TotalBalanceDays: r.TotalBalanceDays,
		TotalAmountPaid:  r.TotalAmountPaid,
	}
	for i, l := range r.Lines {
		dto.Lines[i] = ReportLineDTO{
			Collaborator: toCollaboratorDTO(l.Collaborator),
			Balance:      toBalanceDTO(l.Balance),
		}
	}
	return dto
}

type RunDTO struct {
	ID             string `json:"id"`
	CollaboratorID int64  `json:"collaborator_id"`
	Trigger        string `json:"trigger"`
	Granted        int    `json:"granted"`
	CreditsRemoved int    `json:"credits_removed"`
	DebitsRemoved  int    `json:"debits_removed"`
	Compensations  int    `json:"compensations"`
	ForfeitedDays  int    `json:"forfeited_days"`
	Error          string `json:"error,omitempty"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at"`
}

func toRunDTO(r ledger.Run) RunDTO {
	return RunDTO{
		ID:             r.ID,
		CollaboratorID: int64(r.CollaboratorID),
		Trigger:        string(r.Trigger),
		Granted:        r.Granted,
		CreditsRemoved: r.CreditsRemoved,
		DebitsRemoved:  r.DebitsRemoved,
		Compensations:  r.Compensations,
		ForfeitedDays:  r.ForfeitedDays,
		Error:          r.Error,
		StartedAt:      r.StartedAt.Format(time.RFC3339),
		FinishedAt:     r.FinishedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}
