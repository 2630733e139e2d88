package satusehat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medbridge/satusehat-bridge/internal/domain"
)

// SubmissionResult is the outcome of one ServiceRequest dispatch. The client
// never panics or returns a bare error for remote rejections: the caller
// always receives a result value it can turn into a candidate outcome.
type SubmissionResult struct {
	Success          bool            `json:"success"`
	ServiceRequestID string          `json:"service_request_id,omitempty"`
	Message          string          `json:"message"`
	RawDetail        json.RawMessage `json:"raw_detail,omitempty"`
}

// Submitter abstracts the SATUSEHAT dispatch so the pipeline can be tested
// without real HTTP calls.
type Submitter interface {
	CreateServiceRequest(ctx context.Context, tx domain.BridgeTransaction, token string) *SubmissionResult
}

// Client posts ServiceRequest resources to the SATUSEHAT FHIR API.
type Client struct {
	baseURL        string
	organizationID string
	httpClient     *http.Client
	logger         *zap.Logger
}

func NewClient(baseURL, organizationID string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		organizationID: organizationID,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
	}
}

// BuildServiceRequest maps an assembled transaction to the FHIR payload:
// one coding per item, distinct reason texts, references from the order
// header, and an identifier scoped to the configured organization.
func (c *Client) BuildServiceRequest(tx domain.BridgeTransaction) ServiceRequest {
	codings := make([]Coding, 0, len(tx.Items))
	for _, item := range tx.Items {
		codings = append(codings, Coding{
			System:  loincSystem,
			Code:    item.Coding.Code,
			Display: item.Coding.Display,
		})
	}

	var reasons []CodeableConcept
	for _, text := range tx.ReasonTexts() {
		reasons = append(reasons, CodeableConcept{Text: text})
	}

	when := tx.Order.TransactionTime.Format(time.RFC3339)

	return ServiceRequest{
		ResourceType: "ServiceRequest",
		Identifier: []Identifier{{
			System: identifierSystemPrefix + c.organizationID,
			Value:  tx.Order.OrderNo,
		}},
		Status:   "active",
		Intent:   "original-order",
		Priority: "routine",
		Category: []CodeableConcept{{
			Coding: []Coding{{
				System:  snomedSystem,
				Code:    categoryLabProcedureCode,
				Display: categoryLabProcedureDisplay,
			}},
		}},
		Code: CodeableConcept{
			Coding: codings,
			Text:   fmt.Sprintf("%d pemeriksaan lab", len(tx.Items)),
		},
		Subject:            Reference{Reference: "Patient/" + tx.Order.PatientID},
		Encounter:          Reference{Reference: "Encounter/" + tx.Order.EncounterID},
		OccurrenceDateTime: when,
		AuthoredOn:         when,
		Requester: Reference{
			Reference: "Practitioner/" + tx.Order.PractitionerID,
			Display:   tx.Order.PractitionerName,
		},
		Performer: []Reference{{
			Reference: "Practitioner/" + tx.Order.PerformerID,
			Display:   tx.Order.PerformerName,
		}},
		ReasonCode: reasons,
	}
}

// CreateServiceRequest builds the payload and posts it as an authenticated
// JSON request. Non-success responses are folded into the result: the
// message carries "[code] text" from the first OperationOutcome issue when
// present, otherwise the HTTP status line.
func (c *Client) CreateServiceRequest(ctx context.Context, tx domain.BridgeTransaction, token string) *SubmissionResult {
	payload := c.BuildServiceRequest(tx)

	body, err := json.Marshal(payload)
	if err != nil {
		return &SubmissionResult{Message: fmt.Sprintf("marshal payload: %v", err)}
	}

	log := c.logger.With(zap.String("order_no", tx.Order.OrderNo))
	log.Debug("submitting ServiceRequest",
		zap.Int("items", len(tx.Items)),
		zap.ByteString("payload", body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ServiceRequest", bytes.NewReader(body))
	if err != nil {
		return &SubmissionResult{Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("ServiceRequest dispatch failed", zap.Error(err))
		return &SubmissionResult{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &SubmissionResult{Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result := &SubmissionResult{
			Message:   extractIssue(respBody, resp.StatusCode, resp.Status),
			RawDetail: rawDetail(respBody),
		}
		log.Warn("ServiceRequest rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("message", result.Message))
		return result
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil || created.ID == "" {
		return &SubmissionResult{
			Message:   "success response contains no resource id",
			RawDetail: rawDetail(respBody),
		}
	}

	log.Info("ServiceRequest created", zap.String("service_request_id", created.ID))

	return &SubmissionResult{
		Success:          true,
		ServiceRequestID: created.ID,
		Message:          "ServiceRequest created",
	}
}

// rawDetail keeps the upstream body on the result when it is JSON. Non-JSON
// bodies are dropped so the result itself stays marshalable.
func rawDetail(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return nil
}

// extractIssue pulls "[code] text" from the first OperationOutcome issue,
// falling back to diagnostics and then to the HTTP status line.
func extractIssue(body []byte, statusCode int, statusLine string) string {
	var outcome OperationOutcome
	if err := json.Unmarshal(body, &outcome); err == nil && len(outcome.Issue) > 0 {
		issue := outcome.Issue[0]
		text := issue.Details.Text
		if text == "" {
			text = issue.Diagnostics
		}
		if text != "" || issue.Code != "" {
			return fmt.Sprintf("[%s] %s", issue.Code, text)
		}
	}
	return fmt.Sprintf("HTTP %d - %s", statusCode, statusLine)
}

// compile-time check that Client implements Submitter
var _ Submitter = (*Client)(nil)
