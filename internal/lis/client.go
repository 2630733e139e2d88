package lis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ResultItem is one parameter row inside a LIS result batch.
// Field names follow the upstream JSON exactly. code_loinc may be empty,
// which marks the item as not eligible for submission.
type ResultItem struct {
	ParameterName  string `json:"nama_parameter"`
	Result         string `json:"hasil"`
	Unit           string `json:"satuan"`
	ReferenceRange string `json:"n_rujukan"`
	Method         string `json:"metoda"`
	Group          string `json:"grup"`
	LoincCode      string `json:"code_loinc"`
	LoincDisplay   string `json:"display_loinc"`
}

// ResultBatch is one historical result set for a patient record. One
// patient-record lookup may return many batches; at most one matches a
// given order by business key.
type ResultBatch struct {
	OrderNo     string       `json:"no_trans"`
	LabNo       string       `json:"no_lab"`
	PatientName string       `json:"nama"`
	RecordNo    string       `json:"no_rm"`
	Items       []ResultItem `json:"Data"`
}

// Client fetches result batches from the LIS REST feed. The feed is slow,
// so the timeout is configured generously (default tens of seconds).
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchResults performs one lookup for a patient record number and returns
// every historical batch the LIS holds for it.
func (c *Client) FetchResults(ctx context.Context, recordNo string) ([]ResultBatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+recordNo, nil)
	if err != nil {
		return nil, fmt.Errorf("create LIS request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch LIS results for %s: %w", recordNo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("LIS returned status %d for %s", resp.StatusCode, recordNo)
	}

	var batches []ResultBatch
	if err := json.NewDecoder(resp.Body).Decode(&batches); err != nil {
		return nil, fmt.Errorf("decode LIS response for %s: %w", recordNo, err)
	}

	c.logger.Debug("fetched LIS result batches",
		zap.String("record_no", recordNo),
		zap.Int("batches", len(batches)))

	return batches, nil
}

// Correlate scans batches for the one whose business key equals orderNo,
// compared as trimmed strings. First match in returned order wins; any
// further match is a data-quality smell and is only logged by the caller.
// Returns nil when nothing matches.
func Correlate(orderNo string, batches []ResultBatch) *ResultBatch {
	want := strings.TrimSpace(orderNo)
	for i := range batches {
		if strings.TrimSpace(batches[i].OrderNo) == want {
			return &batches[i]
		}
	}
	return nil
}
