package domain_test

import (
	"testing"
	"time"

	"github.com/medbridge/satusehat-bridge/internal/domain"
)

func TestLabOrder_HasCompleteReferences(t *testing.T) {
	complete := domain.LabOrder{
		PatientID:      "P1",
		EncounterID:    "E1",
		PractitionerID: "D1",
	}

	tests := []struct {
		name   string
		mutate func(*domain.LabOrder)
		want   bool
	}{
		{"all present", func(o *domain.LabOrder) {}, true},
		{"missing patient", func(o *domain.LabOrder) { o.PatientID = "" }, false},
		{"missing encounter", func(o *domain.LabOrder) { o.EncounterID = "  " }, false},
		{"missing practitioner", func(o *domain.LabOrder) { o.PractitionerID = "" }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := complete
			tc.mutate(&o)
			if got := o.HasCompleteReferences(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestBridgeTransaction_ReasonTexts(t *testing.T) {
	tx := domain.BridgeTransaction{
		Order: domain.LabOrder{OrderNo: "B1", TransactionTime: time.Now()},
		Items: []domain.LabItem{
			{ParameterName: "HGB"},
			{ParameterName: "HGB"},
			{ParameterName: "  LED  "},
			{ParameterName: ""},
			{ParameterName: "HCT"},
		},
	}

	got := tx.ReasonTexts()
	want := []string{"HGB", "LED", "HCT"}
	if len(got) != len(want) {
		t.Fatalf("expected %d reason texts, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestBatchSummary_Add(t *testing.T) {
	var s domain.BatchSummary
	s.Add(domain.CandidateResult{OrderNo: "A", Outcome: domain.OutcomeSent})
	s.Add(domain.CandidateResult{OrderNo: "B", Outcome: domain.OutcomeSkippedNoMatch})
	s.Add(domain.CandidateResult{OrderNo: "C", Outcome: domain.OutcomeSkippedInvalid})
	s.Add(domain.CandidateResult{OrderNo: "D", Outcome: domain.OutcomeFailed})

	if s.Sent != 1 || s.Skipped != 2 || s.Failed != 1 {
		t.Fatalf("unexpected counters: sent=%d skipped=%d failed=%d", s.Sent, s.Skipped, s.Failed)
	}
	if len(s.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(s.Results))
	}
}
