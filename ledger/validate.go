/*
validate.go - Caller input rules

Everything here runs before the first write of a mutation, so a rejected
request leaves no trace in the ledger.

RULES:
  - collaborator exists and is active
  - date is set and not after today
  - hours: non-zero, within [-24, 24]
  - day_credit / day_usage: 1..365 days
  - conversion: days >= 1, rate >= 0, amount >= 0
  - payload fields foreign to the record type are rejected
  - callers never write automatic_reconciliation or system_adjustment rows
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

var maxHoursPerEntry = decimal.NewFromInt(MaxHoursPerEntry)

func (s *Service) activeCollaborator(ctx context.Context, st Store, id CollaboratorID) (Collaborator, error) {
	if id <= 0 {
		return Collaborator{}, &ValidationError{Field: "collaborator_id", Reason: "is required"}
	}
	c, err := st.Collaborator(ctx, id)
	if err != nil {
		return Collaborator{}, err
	}
	if !c.Active {
		return Collaborator{}, &ValidationError{Field: "collaborator_id", Reason: fmt.Sprintf("collaborator %d is inactive", id)}
	}
	return c, nil
}

// entryFromInput validates in and turns it into a row ready for insertion.
func (s *Service) entryFromInput(in EntryInput) (Entry, error) {
	if !in.Type.Valid() {
		return Entry{}, &ValidationError{Field: "record_type", Reason: fmt.Sprintf("unknown record type %q", in.Type)}
	}
	origin := in.Origin
	if origin == "" {
		origin = OriginManual
	}
	if !origin.Valid() {
		return Entry{}, &ValidationError{Field: "origin", Reason: fmt.Sprintf("unknown origin %q", origin)}
	}
	if origin.Automatic() {
		return Entry{}, &ValidationError{Field: "origin", Reason: fmt.Sprintf("%s entries are written by the engine only", origin)}
	}
	if err := s.validateDate(in.Date); err != nil {
		return Entry{}, err
	}

	e := Entry{
		CollaboratorID: in.CollaboratorID,
		Date:           in.Date,
		Type:           in.Type,
		Hours:          decimal.Zero,
		AmountPaid:     decimal.Zero,
		RatePerDay:     decimal.Zero,
		Origin:         origin,
		Notes:          in.Notes,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      s.clock.Now(),
		BulkID:         in.BulkID,
	}

	switch in.Type {
	case RecordHours:
		if in.Days != 0 {
			return Entry{}, &ValidationError{Field: "days", Reason: "not allowed on hours entries"}
		}
		if in.AmountPaid != nil || in.RatePerDay != nil {
			return Entry{}, &ValidationError{Field: "amount_paid", Reason: "only allowed on conversion entries"}
		}
		if err := validateHours(in.Hours); err != nil {
			return Entry{}, err
		}
		e.Hours = in.Hours
	case RecordDayCredit, RecordDayUsage:
		if !in.Hours.IsZero() {
			return Entry{}, &ValidationError{Field: "hours", Reason: "only allowed on hours entries"}
		}
		if in.AmountPaid != nil || in.RatePerDay != nil {
			return Entry{}, &ValidationError{Field: "amount_paid", Reason: "only allowed on conversion entries"}
		}
		if err := validateDays(in.Days); err != nil {
			return Entry{}, err
		}
		e.Days = in.Days
	case RecordConversion:
		if !in.Hours.IsZero() {
			return Entry{}, &ValidationError{Field: "hours", Reason: "only allowed on hours entries"}
		}
		if in.Days < 1 {
			return Entry{}, &ValidationError{Field: "days", Reason: "must be at least 1"}
		}
		rate, amount := conversionAmount(in.Days, in.RatePerDay, in.AmountPaid)
		if err := validateMoney(rate, amount); err != nil {
			return Entry{}, err
		}
		e.Days, e.RatePerDay, e.AmountPaid = in.Days, rate, amount
	}
	return e, nil
}

// applyPatch returns a copy of e with p applied and validated.
func (s *Service) applyPatch(e Entry, p EntryPatch) (Entry, error) {
	if e.Origin.Automatic() {
		return Entry{}, &ValidationError{Field: "origin", Reason: fmt.Sprintf("%s entries cannot be edited", e.Origin)}
	}
	if p.Type != nil && *p.Type != e.Type {
		return Entry{}, &ValidationError{Field: "record_type", Reason: "record type cannot be changed; delete and re-create the entry"}
	}

	out := e
	if p.CollaboratorID != nil {
		out.CollaboratorID = *p.CollaboratorID
	}
	if p.Date != nil {
		if err := s.validateDate(*p.Date); err != nil {
			return Entry{}, err
		}
		out.Date = *p.Date
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}

	switch e.Type {
	case RecordHours:
		if p.Days != nil {
			return Entry{}, &ValidationError{Field: "days", Reason: "not allowed on hours entries"}
		}
		if p.AmountPaid != nil || p.RatePerDay != nil {
			return Entry{}, &ValidationError{Field: "amount_paid", Reason: "only allowed on conversion entries"}
		}
		if p.Hours != nil {
			if err := validateHours(*p.Hours); err != nil {
				return Entry{}, err
			}
			out.Hours = *p.Hours
		}
	case RecordDayCredit, RecordDayUsage:
		if p.Hours != nil {
			return Entry{}, &ValidationError{Field: "hours", Reason: "only allowed on hours entries"}
		}
		if p.AmountPaid != nil || p.RatePerDay != nil {
			return Entry{}, &ValidationError{Field: "amount_paid", Reason: "only allowed on conversion entries"}
		}
		if p.Days != nil {
			if err := validateDays(*p.Days); err != nil {
				return Entry{}, err
			}
			out.Days = *p.Days
		}
	case RecordConversion:
		if p.Hours != nil {
			return Entry{}, &ValidationError{Field: "hours", Reason: "only allowed on hours entries"}
		}
		if p.Days != nil {
			if *p.Days < 1 {
				return Entry{}, &ValidationError{Field: "days", Reason: "must be at least 1"}
			}
			out.Days = *p.Days
		}
		if p.RatePerDay != nil {
			out.RatePerDay = *p.RatePerDay
		}
		if p.AmountPaid != nil {
			out.AmountPaid = *p.AmountPaid
		}
		if err := validateMoney(out.RatePerDay, out.AmountPaid); err != nil {
			return Entry{}, err
		}
	}
	return out, nil
}

func (s *Service) validateDate(d Date) error {
	if d.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if d.After(s.clock.Today()) {
		return &ValidationError{Field: "date", Reason: fmt.Sprintf("%s is in the future", d)}
	}
	return nil
}

func validateHours(h decimal.Decimal) error {
	if h.IsZero() {
		return &ValidationError{Field: "hours", Reason: "must not be zero"}
	}
	if h.Abs().GreaterThan(maxHoursPerEntry) {
		return &ValidationError{Field: "hours", Reason: fmt.Sprintf("must be within [-%d, %d]", MaxHoursPerEntry, MaxHoursPerEntry)}
	}
	return nil
}

func validateDays(days int) error {
	if days < 1 || days > MaxDaysPerEntry {
		return &ValidationError{Field: "days", Reason: fmt.Sprintf("must be between 1 and %d", MaxDaysPerEntry)}
	}
	return nil
}

func validateMoney(rate, amount decimal.Decimal) error {
	if rate.IsNegative() {
		return &ValidationError{Field: "rate_per_day", Reason: "must not be negative"}
	}
	if amount.IsNegative() {
		return &ValidationError{Field: "amount_paid", Reason: "must not be negative"}
	}
	return nil
}
