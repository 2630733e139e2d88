package satusehat

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"go.uber.org/zap"

	"github.com/medbridge/satusehat-bridge/internal/domain"
)

func testTransaction() domain.BridgeTransaction {
	return domain.BridgeTransaction{
		Order: domain.LabOrder{
			OrderNo:          "B1",
			RecordNo:         "R1",
			PatientID:        "P1",
			EncounterID:      "E1",
			TransactionTime:  time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC),
			PractitionerID:   "D1",
			PractitionerName: "dr. Example",
			PerformerID:      "D2",
			PerformerName:    "Lab Analyst",
		},
		Items: []domain.LabItem{
			{
				Coding:        domain.Coding{System: "http://loinc.org", Code: "718-7", Display: "Hemoglobin"},
				ParameterName: "HGB",
			},
			{
				Coding:        domain.Coding{System: "http://loinc.org", Code: "4544-3", Display: "Hematocrit"},
				ParameterName: "HGB", // duplicate reason text on purpose
			},
		},
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient("https://fhir.example.test", "ORG123", 5*time.Second, zap.NewNop())
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestClient_BuildServiceRequest(t *testing.T) {
	c := NewClient("https://fhir.example.test", "ORG123", 5*time.Second, zap.NewNop())

	sr := c.BuildServiceRequest(testTransaction())

	if sr.ResourceType != "ServiceRequest" {
		t.Fatalf("unexpected resourceType %q", sr.ResourceType)
	}
	if sr.Status != "active" || sr.Intent != "original-order" || sr.Priority != "routine" {
		t.Fatalf("unexpected status/intent/priority: %+v", sr)
	}

	if len(sr.Identifier) != 1 {
		t.Fatalf("expected 1 identifier, got %d", len(sr.Identifier))
	}
	id := sr.Identifier[0]
	if id.System != "http://sys-ids.kemkes.go.id/servicerequest/ORG123" || id.Value != "B1" {
		t.Fatalf("unexpected identifier: %+v", id)
	}

	if len(sr.Code.Coding) != 2 {
		t.Fatalf("expected one coding per item, got %d", len(sr.Code.Coding))
	}
	if sr.Code.Coding[0].System != "http://loinc.org" || sr.Code.Coding[0].Code != "718-7" {
		t.Fatalf("unexpected first coding: %+v", sr.Code.Coding[0])
	}

	// Duplicate parameter names collapse into one reason entry.
	if len(sr.ReasonCode) != 1 || sr.ReasonCode[0].Text != "HGB" {
		t.Fatalf("unexpected reasonCode: %+v", sr.ReasonCode)
	}

	if sr.Subject.Reference != "Patient/P1" || sr.Encounter.Reference != "Encounter/E1" {
		t.Fatalf("unexpected subject/encounter: %+v", sr)
	}
	if sr.Requester.Reference != "Practitioner/D1" || sr.Performer[0].Reference != "Practitioner/D2" {
		t.Fatalf("unexpected requester/performer: %+v", sr)
	}

	want := "2026-08-20T09:30:00Z"
	if sr.AuthoredOn != want || sr.OccurrenceDateTime != want {
		t.Fatalf("unexpected timestamps: authoredOn=%s occurrence=%s", sr.AuthoredOn, sr.OccurrenceDateTime)
	}
}

func TestClient_CreateServiceRequest_Success(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://fhir.example.test/ServiceRequest",
		httpmock.NewStringResponder(http.StatusCreated,
			`{"resourceType":"ServiceRequest","id":"SR123","status":"active"}`))

	res := c.CreateServiceRequest(context.Background(), testTransaction(), "tok-1")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.ServiceRequestID != "SR123" {
		t.Fatalf("expected SR123, got %q", res.ServiceRequestID)
	}
}

func TestClient_CreateServiceRequest_SendsBearerToken(t *testing.T) {
	c := newTestClient(t)

	var gotAuth string
	httpmock.RegisterResponder(http.MethodPost, "https://fhir.example.test/ServiceRequest",
		func(req *http.Request) (*http.Response, error) {
			gotAuth = req.Header.Get("Authorization")
			return httpmock.NewStringResponse(http.StatusCreated, `{"id":"SR123"}`), nil
		})

	_ = c.CreateServiceRequest(context.Background(), testTransaction(), "tok-1")
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("expected Bearer tok-1, got %q", gotAuth)
	}
}

func TestClient_CreateServiceRequest_OperationOutcome(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://fhir.example.test/ServiceRequest",
		httpmock.NewStringResponder(http.StatusUnprocessableEntity, `{
			"resourceType": "OperationOutcome",
			"issue": [{"severity":"error","code":"invalid","details":{"text":"unknown coding system"}}]
		}`))

	res := c.CreateServiceRequest(context.Background(), testTransaction(), "tok-1")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message != "[invalid] unknown coding system" {
		t.Fatalf("unexpected message: %q", res.Message)
	}
	if len(res.RawDetail) == 0 {
		t.Fatal("expected the raw response body to be preserved")
	}
}

func TestClient_CreateServiceRequest_StatusLineFallback(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://fhir.example.test/ServiceRequest",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream error"))

	res := c.CreateServiceRequest(context.Background(), testTransaction(), "tok-1")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message == "" {
		t.Fatal("expected a fallback message from the HTTP status")
	}
}

func TestClient_CreateServiceRequest_MissingID(t *testing.T) {
	c := newTestClient(t)
	httpmock.RegisterResponder(http.MethodPost, "https://fhir.example.test/ServiceRequest",
		httpmock.NewStringResponder(http.StatusCreated, `{"status":"active"}`))

	res := c.CreateServiceRequest(context.Background(), testTransaction(), "tok-1")
	if res.Success {
		t.Fatal("expected failure when the response has no resource id")
	}
}
