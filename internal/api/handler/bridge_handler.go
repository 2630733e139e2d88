package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/medbridge/satusehat-bridge/internal/api/middleware"
	"github.com/medbridge/satusehat-bridge/internal/domain"
	"github.com/medbridge/satusehat-bridge/internal/pipeline"
)

// BridgeHandler exposes the preview and manual-trigger surface of the
// bridging pipeline.
type BridgeHandler struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

func NewBridgeHandler(p *pipeline.Pipeline, logger *zap.Logger) *BridgeHandler {
	return &BridgeHandler{pipeline: p, logger: logger}
}

// Preview handles GET /api/v1/lab/{orderNo}
//
// Returns the merged local+LIS view for one unsent order so operators can
// inspect what a submission would contain.
func (h *BridgeHandler) Preview(w http.ResponseWriter, r *http.Request) {
	orderNo := chi.URLParam(r, "orderNo")
	if orderNo == "" {
		respondError(w, http.StatusBadRequest, "orderNo path parameter is required")
		return
	}

	pr, err := h.pipeline.Preview(r.Context(), orderNo)
	if err != nil {
		h.logger.Warn("preview failed",
			zap.String("order_no", orderNo),
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, pr)
}

type bridgeRequest struct {
	OrderNo string `json:"order_no"`
}

// Bridge handles POST /api/v1/lab/bridge
//
// Submits a single order on demand. The response status reflects the
// candidate outcome: 200 sent, 404 no correlation, 422 invalid, 502 the
// remote API rejected the payload.
func (h *BridgeHandler) Bridge(w http.ResponseWriter, r *http.Request) {
	var req bridgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderNo == "" {
		respondError(w, http.StatusBadRequest, "order_no is required in the JSON request body")
		return
	}

	result, err := h.pipeline.BridgeOrder(r.Context(), req.OrderNo)
	if err != nil {
		h.logger.Warn("manual bridge failed",
			zap.String("order_no", req.OrderNo),
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, outcomeStatus(result.Outcome), result)
}

// Run handles POST /api/v1/bridge/run
//
// Triggers one full batch run. 409 when a run is already executing.
func (h *BridgeHandler) Run(w http.ResponseWriter, r *http.Request) {
	summary, err := h.pipeline.Run(r.Context())
	if err != nil {
		h.logger.Warn("manual run failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func outcomeStatus(o domain.Outcome) int {
	switch o {
	case domain.OutcomeSent:
		return http.StatusOK
	case domain.OutcomeSkippedNoMatch:
		return http.StatusNotFound
	case domain.OutcomeSkippedInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
