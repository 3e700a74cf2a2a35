package installments

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// RecordKind discriminates the entries of a grouped listing.
type RecordKind int

const (
	KindSingle RecordKind = iota + 1
	KindPlan
)

// String implements fmt.Stringer.
func (k RecordKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindPlan:
		return "plan"
	default:
		return "unknown"
	}
}

// Record is one decoded entry of a grouped response: either a single
// installment or a plan.
type Record struct {
	Kind        RecordKind
	Installment *Installment
	Plan        *Plan
}

var errMalformedRecord = errors.New("malformed installment record")

// DecodeRecords decodes raw entries into records. An entry is a plan when it
// carries a numeric sale_id and an array installments field, a single
// installment when it carries a numeric id and sale_id, and malformed
// otherwise. Malformed entries are skipped and reported in the returned
// warnings. A plan keeps its well-formed installments; nested installments
// that fail to decode are dropped and reported the same way.
func DecodeRecords(raw []json.RawMessage) ([]Record, []error) {
	records := make([]Record, 0, len(raw))
	var warnings []error
	for i, entry := range raw {
		rec, dropped, err := decodeRecord(entry)
		for _, d := range dropped {
			warnings = append(warnings, fmt.Errorf("entry %d: %w", i, d))
		}
		if err != nil {
			warnings = append(warnings, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}
	return records, warnings
}

// DecodePlans decodes raw entries and keeps only the plans. Warnings are
// logged at Warn when a logger is supplied.
func DecodePlans(logger *slog.Logger, raw []json.RawMessage) []Plan {
	records, warnings := DecodeRecords(raw)
	if logger != nil {
		for _, w := range warnings {
			logger.Warn("skip grouped entry", slog.Any("error", w))
		}
	}
	return Plans(records)
}

// Plans returns the plan records in order.
func Plans(records []Record) []Plan {
	plans := make([]Plan, 0, len(records))
	for _, rec := range records {
		if rec.Kind == KindPlan && rec.Plan != nil {
			plans = append(plans, *rec.Plan)
		}
	}
	return plans
}

// planEntry decodes a plan while leaving its installments raw.
type planEntry struct {
	Plan
	Installments []json.RawMessage `json:"installments"`
}

func decodeRecord(entry json.RawMessage) (Record, []error, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return Record{}, nil, fmt.Errorf("%w: not an object", errMalformedRecord)
	}
	if !isNumber(fields["sale_id"]) {
		return Record{}, nil, fmt.Errorf("%w: sale_id is not numeric", errMalformedRecord)
	}
	if isArray(fields["installments"]) {
		var pe planEntry
		if err := json.Unmarshal(entry, &pe); err != nil {
			return Record{}, nil, fmt.Errorf("%w: %v", errMalformedRecord, err)
		}
		p := pe.Plan
		p.Installments = make([]Installment, 0, len(pe.Installments))
		var dropped []error
		for j, child := range pe.Installments {
			var inst Installment
			if err := json.Unmarshal(child, &inst); err != nil {
				dropped = append(dropped, fmt.Errorf("%w: installment %d of sale %d: %v", errMalformedRecord, j, p.SaleID, err))
				continue
			}
			p.Installments = append(p.Installments, inst)
		}
		return Record{Kind: KindPlan, Plan: &p}, dropped, nil
	}
	if _, present := fields["installments"]; present {
		return Record{}, nil, fmt.Errorf("%w: installments is not an array", errMalformedRecord)
	}
	if !isNumber(fields["id"]) {
		return Record{}, nil, fmt.Errorf("%w: missing installments and id", errMalformedRecord)
	}
	var inst Installment
	if err := json.Unmarshal(entry, &inst); err != nil {
		return Record{}, nil, fmt.Errorf("%w: %v", errMalformedRecord, err)
	}
	return Record{Kind: KindSingle, Installment: &inst}, nil, nil
}

func isNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return false
	}
	_, err := n.Int64()
	return err == nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return false
	}
	var arr []json.RawMessage
	return json.Unmarshal(raw, &arr) == nil
}
