package domain

import (
	"strings"
	"time"
)

// LabOrder is the read-only projection of one local lab order awaiting
// submission. order_no is the business key: the local primary reference and
// SATUSEHAT's idempotency identifier.
type LabOrder struct {
	OrderNo          string    `json:"order_no"`
	RegistrationNo   string    `json:"registration_no"`
	RecordNo         string    `json:"record_no"`
	PatientID        string    `json:"patient_id"`
	PatientName      string    `json:"patient_name"`
	EncounterID      string    `json:"encounter_id"`
	TransactionTime  time.Time `json:"transaction_time"`
	PractitionerID   string    `json:"practitioner_id"`
	PractitionerName string    `json:"practitioner_name"`
	PerformerID      string    `json:"performer_id"`
	PerformerName    string    `json:"performer_name"`
}

// HasCompleteReferences reports whether the identifiers required to build
// subject/encounter/requester references are all present.
func (o LabOrder) HasCompleteReferences() bool {
	return strings.TrimSpace(o.PatientID) != "" &&
		strings.TrimSpace(o.EncounterID) != "" &&
		strings.TrimSpace(o.PractitionerID) != ""
}

// Coding is a (system, code, display) triple identifying a clinical concept.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// LabItem is one eligible result parameter of a transaction.
// Invariant: Coding.Code is never blank — items without a LOINC code are
// filtered out before a LabItem is built.
type LabItem struct {
	Coding        Coding `json:"coding"`
	ParameterName string `json:"parameter_name"`
	Value         string `json:"value"`
	Unit          string `json:"unit"`
}

// BridgeTransaction is one assembled unit of work: a lab order merged with
// its correlated, LOINC-eligible result items. Items is never empty; an
// order with zero eligible items is skipped instead of assembled.
type BridgeTransaction struct {
	Order LabOrder  `json:"order"`
	Items []LabItem `json:"items"`
}

// ReasonTexts returns the distinct, non-blank parameter names across items,
// preserving first-seen order. Used for the ServiceRequest reasonCode list.
func (t BridgeTransaction) ReasonTexts() []string {
	seen := make(map[string]struct{}, len(t.Items))
	var texts []string
	for _, item := range t.Items {
		text := strings.TrimSpace(item.ParameterName)
		if text == "" {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		texts = append(texts, text)
	}
	return texts
}

// BridgeLog is the persisted marker proving an order was submitted.
// Its existence for an order_no excludes that order from candidate selection.
type BridgeLog struct {
	OrderNo          string    `json:"order_no"`
	ServiceRequestID string    `json:"service_request_id"`
	RegistrationNo   string    `json:"registration_no"`
	RecordNo         string    `json:"record_no"`
	EncounterID      string    `json:"encounter_id"`
	AuthoredOn       time.Time `json:"authored_on"`
	CreatedAt        time.Time `json:"created_at"`
}

// BridgeLogItem is one detail row of a marker, one per submitted LabItem.
type BridgeLogItem struct {
	OrderNo          string `json:"order_no"`
	ServiceRequestID string `json:"service_request_id"`
	LoincCode        string `json:"loinc_code"`
	LoincDisplay     string `json:"loinc_display"`
}

// Outcome is the terminal state of one candidate within a batch run.
type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeSkippedNoMatch Outcome = "skipped_no_match"
	OutcomeSkippedInvalid Outcome = "skipped_invalid"
	OutcomeFailed         Outcome = "failed"
)

// CandidateResult pairs a candidate with its terminal outcome.
type CandidateResult struct {
	OrderNo          string  `json:"order_no"`
	Outcome          Outcome `json:"outcome"`
	ServiceRequestID string  `json:"service_request_id,omitempty"`
	Message          string  `json:"message,omitempty"`
}

// BatchSummary aggregates one pipeline run for observability.
type BatchSummary struct {
	Candidates int               `json:"candidates"`
	Sent       int               `json:"sent"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Results    []CandidateResult `json:"results,omitempty"`
}

// Add records one candidate result and updates the counters.
func (s *BatchSummary) Add(r CandidateResult) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case OutcomeSent:
		s.Sent++
	case OutcomeSkippedNoMatch, OutcomeSkippedInvalid:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}
