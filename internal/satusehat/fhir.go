package satusehat

// Minimal FHIR R4 types for the ServiceRequest resource this service
// submits. Only the fields SATUSEHAT requires are modeled.

const (
	loincSystem  = "http://loinc.org"
	snomedSystem = "http://snomed.info/sct"

	identifierSystemPrefix = "http://sys-ids.kemkes.go.id/servicerequest/"

	categoryLabProcedureCode    = "108252007"
	categoryLabProcedureDisplay = "Laboratory procedure"
)

type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// ServiceRequest is the lab-order resource posted to the FHIR endpoint.
type ServiceRequest struct {
	ResourceType       string            `json:"resourceType"`
	Identifier         []Identifier      `json:"identifier"`
	Status             string            `json:"status"`
	Intent             string            `json:"intent"`
	Priority           string            `json:"priority"`
	Category           []CodeableConcept `json:"category"`
	Code               CodeableConcept   `json:"code"`
	Subject            Reference         `json:"subject"`
	Encounter          Reference         `json:"encounter"`
	OccurrenceDateTime string            `json:"occurrenceDateTime"`
	AuthoredOn         string            `json:"authoredOn"`
	Requester          Reference         `json:"requester"`
	Performer          []Reference       `json:"performer"`
	ReasonCode         []CodeableConcept `json:"reasonCode,omitempty"`
}

// OperationOutcome carries the structured issue list SATUSEHAT returns on
// rejected submissions.
type OperationOutcome struct {
	Issue []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Details     struct {
		Text string `json:"text"`
	} `json:"details"`
	Diagnostics string `json:"diagnostics"`
}
