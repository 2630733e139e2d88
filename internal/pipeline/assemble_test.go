package pipeline_test

import (
	"errors"
	"testing"
	"time"

	"github.com/medbridge/satusehat-bridge/internal/domain"
	"github.com/medbridge/satusehat-bridge/internal/lis"
	"github.com/medbridge/satusehat-bridge/internal/pipeline"
)

var completeOrder = domain.LabOrder{
	OrderNo:          "B1",
	RegistrationNo:   "REG1",
	RecordNo:         "R1",
	PatientID:        "P1",
	EncounterID:      "E1",
	TransactionTime:  time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC),
	PractitionerID:   "D1",
	PractitionerName: "dr. Example",
	PerformerID:      "D2",
	PerformerName:    "Lab Analyst",
}

func TestAssemble_FiltersItemsWithoutLoinc(t *testing.T) {
	batch := lis.ResultBatch{
		OrderNo: "B1",
		Items: []lis.ResultItem{
			{ParameterName: "HGB", LoincCode: "718-7", LoincDisplay: "Hemoglobin", Result: "13.5", Unit: "g/dL"},
			{ParameterName: "LED", LoincCode: "  ", LoincDisplay: ""},
			{ParameterName: "HCT", LoincCode: "4544-3", LoincDisplay: "Hematocrit"},
		},
	}

	tx, err := pipeline.Assemble(completeOrder, batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tx.Items) != 2 {
		t.Fatalf("expected 2 eligible items, got %d", len(tx.Items))
	}
	if tx.Items[0].Coding.Code != "718-7" || tx.Items[1].Coding.Code != "4544-3" {
		t.Fatalf("unexpected item codes: %+v", tx.Items)
	}
	if tx.Items[0].Coding.System != "http://loinc.org" {
		t.Fatalf("expected LOINC system, got %s", tx.Items[0].Coding.System)
	}
}

func TestAssemble_AllItemsBlank(t *testing.T) {
	batch := lis.ResultBatch{
		OrderNo: "B1",
		Items: []lis.ResultItem{
			{ParameterName: "LED", LoincCode: ""},
			{ParameterName: "GDS", LoincCode: "   "},
		},
	}

	_, err := pipeline.Assemble(completeOrder, batch)
	if !errors.Is(err, domain.ErrNoEligibleItems) {
		t.Fatalf("expected ErrNoEligibleItems, got %v", err)
	}
}

func TestAssemble_EmptyBatch(t *testing.T) {
	_, err := pipeline.Assemble(completeOrder, lis.ResultBatch{OrderNo: "B1"})
	if !errors.Is(err, domain.ErrNoEligibleItems) {
		t.Fatalf("expected ErrNoEligibleItems, got %v", err)
	}
}

func TestAssemble_IncompleteHeader(t *testing.T) {
	batch := lis.ResultBatch{
		OrderNo: "B1",
		Items:   []lis.ResultItem{{ParameterName: "HGB", LoincCode: "718-7"}},
	}

	tests := []struct {
		name   string
		mutate func(*domain.LabOrder)
	}{
		{"no patient id", func(o *domain.LabOrder) { o.PatientID = "" }},
		{"no encounter id", func(o *domain.LabOrder) { o.EncounterID = "" }},
		{"no practitioner id", func(o *domain.LabOrder) { o.PractitionerID = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := completeOrder
			tc.mutate(&o)
			_, err := pipeline.Assemble(o, batch)
			if !errors.Is(err, domain.ErrIncompleteOrder) {
				t.Fatalf("expected ErrIncompleteOrder, got %v", err)
			}
		})
	}
}
