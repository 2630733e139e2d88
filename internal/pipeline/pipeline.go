package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/medbridge/satusehat-bridge/internal/domain"
	"github.com/medbridge/satusehat-bridge/internal/lis"
	"github.com/medbridge/satusehat-bridge/internal/repository"
	"github.com/medbridge/satusehat-bridge/internal/satusehat"
)

// TokenSource supplies the bearer token for a batch. Implemented by
// auth.TokenCache; mocked in tests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ResultFetcher performs the per-patient-record LIS lookup. Implemented by
// lis.Client; mocked in tests.
type ResultFetcher interface {
	FetchResults(ctx context.Context, recordNo string) ([]lis.ResultBatch, error)
}

// MetricHooks carries the metric callbacks injected by main.
// nil fields are replaced with no-ops.
type MetricHooks struct {
	OnOutcome func(domain.Outcome)
	OnRun     func(candidates int, elapsed time.Duration)
}

// Options bounds one pipeline run.
type Options struct {
	// BatchLimit caps the number of candidates per run.
	BatchLimit int
	// Workers is the number of concurrent candidate processors.
	Workers int
	// StartDate excludes orders older than this date. Zero means
	// "start of today", resolved at each run.
	StartDate time.Time
}

// Pipeline is the auto-bridging orchestrator. One Run discovers unsent
// orders, correlates each against the LIS feed, assembles and dispatches a
// ServiceRequest, and records the marker that keeps the order from ever
// being submitted again.
//
// At most one run executes at a time; Run refuses with ErrRunInProgress
// while a previous run (scheduled or manual) is still executing.
type Pipeline struct {
	repo      repository.OrderRepository
	tokens    TokenSource
	fetcher   ResultFetcher
	submitter satusehat.Submitter
	limiter   *rate.Limiter
	opts      Options
	logger    *zap.Logger
	hooks     MetricHooks

	running atomic.Bool
}

func New(
	repo repository.OrderRepository,
	tokens TokenSource,
	fetcher ResultFetcher,
	submitter satusehat.Submitter,
	limiter *rate.Limiter,
	opts Options,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pipeline {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if hooks.OnOutcome == nil {
		hooks.OnOutcome = func(domain.Outcome) {}
	}
	if hooks.OnRun == nil {
		hooks.OnRun = func(int, time.Duration) {}
	}
	return &Pipeline{
		repo:      repo,
		tokens:    tokens,
		fetcher:   fetcher,
		submitter: submitter,
		limiter:   limiter,
		opts:      opts,
		logger:    logger,
		hooks:     hooks,
	}
}

// Run executes one batch. Credential or queue-read failure aborts the whole
// run; every other failure is isolated to its candidate.
func (p *Pipeline) Run(ctx context.Context) (domain.BatchSummary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return domain.BatchSummary{}, domain.ErrRunInProgress
	}
	defer p.running.Store(false)

	start := time.Now()
	summary := domain.BatchSummary{}

	orders, err := p.repo.ListPending(ctx, p.since(), p.opts.BatchLimit)
	if err != nil {
		return summary, fmt.Errorf("list pending orders: %w", err)
	}
	summary.Candidates = len(orders)

	if len(orders) == 0 {
		p.logger.Debug("no pending orders, system idle")
		return summary, nil
	}

	p.logger.Info("bridging run started", zap.Int("candidates", len(orders)))

	// One token per batch. Failure here is batch-fatal: no candidate is
	// attempted and the next scheduled run retries from scratch.
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return summary, err
	}

	jobs := make(chan domain.LabOrder)
	results := make(chan domain.CandidateResult)

	workers := p.opts.Workers
	if workers > len(orders) {
		workers = len(orders)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for order := range jobs {
				results <- p.processOne(ctx, order, token)
			}
		}()
	}

	go func() {
		for _, order := range orders {
			jobs <- order
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for r := range results {
		summary.Add(r)
		p.hooks.OnOutcome(r.Outcome)
	}

	elapsed := time.Since(start)
	p.hooks.OnRun(summary.Candidates, elapsed)
	p.logger.Info("bridging run finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("sent", summary.Sent),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", elapsed))

	return summary, nil
}

// BridgeOrder submits a single order on demand (manual trigger). Uses the
// same per-candidate flow as a batch run, including the sent-marker gate.
func (p *Pipeline) BridgeOrder(ctx context.Context, orderNo string) (domain.CandidateResult, error) {
	order, err := p.repo.FindPending(ctx, orderNo)
	if err != nil {
		return domain.CandidateResult{}, err
	}

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return domain.CandidateResult{}, err
	}

	result := p.processOne(ctx, *order, token)
	p.hooks.OnOutcome(result.Outcome)
	return result, nil
}

// PreviewResult is the merged local+LIS view served by the preview endpoint.
type PreviewResult struct {
	Order      domain.LabOrder  `json:"order"`
	Items      []lis.ResultItem `json:"items"`
	Eligible   int              `json:"eligible"`
	Ineligible int              `json:"ineligible"`
}

// Preview correlates one unsent order against the LIS feed without
// dispatching anything. Returns domain.ErrNoCorrelation when the feed holds
// no matching batch.
func (p *Pipeline) Preview(ctx context.Context, orderNo string) (*PreviewResult, error) {
	order, err := p.repo.FindPending(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	batches, err := p.fetcher.FetchResults(ctx, order.RecordNo)
	if err != nil {
		return nil, err
	}

	batch := lis.Correlate(order.OrderNo, batches)
	if batch == nil {
		return nil, domain.ErrNoCorrelation
	}

	pr := &PreviewResult{Order: *order, Items: batch.Items}
	for _, item := range batch.Items {
		if item.LoincCode == "" {
			pr.Ineligible++
		} else {
			pr.Eligible++
		}
	}
	return pr, nil
}

// processOne walks one candidate through correlate → assemble → dispatch →
// persist and converts every failure into a terminal outcome. It never
// returns an error: candidate isolation is the whole point.
func (p *Pipeline) processOne(ctx context.Context, order domain.LabOrder, token string) domain.CandidateResult {
	log := p.logger.With(
		zap.String("order_no", order.OrderNo),
		zap.String("record_no", order.RecordNo))

	// The limiter paces LIS lookups across all workers.
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return domain.CandidateResult{
				OrderNo: order.OrderNo,
				Outcome: domain.OutcomeFailed,
				Message: "run cancelled while waiting for LIS rate limiter",
			}
		}
	}

	batches, err := p.fetcher.FetchResults(ctx, order.RecordNo)
	if err != nil {
		// Transport trouble on the result feed resolves to "no correlation":
		// the order stays unmarked and is retried on the next run.
		log.Warn("LIS fetch failed, skipping candidate", zap.Error(err))
		return domain.CandidateResult{
			OrderNo: order.OrderNo,
			Outcome: domain.OutcomeSkippedNoMatch,
			Message: err.Error(),
		}
	}

	batch := lis.Correlate(order.OrderNo, batches)
	if batch == nil {
		log.Info("no LIS batch matches order", zap.Int("batches", len(batches)))
		return domain.CandidateResult{
			OrderNo: order.OrderNo,
			Outcome: domain.OutcomeSkippedNoMatch,
			Message: domain.ErrNoCorrelation.Error(),
		}
	}
	if n := countMatches(order.OrderNo, batches); n > 1 {
		// Upstream returned duplicate business keys; first match wins.
		log.Warn("multiple LIS batches share the business key", zap.Int("matches", n))
	}

	tx, err := Assemble(order, *batch)
	if err != nil {
		log.Info("candidate failed validation", zap.Error(err))
		return domain.CandidateResult{
			OrderNo: order.OrderNo,
			Outcome: domain.OutcomeSkippedInvalid,
			Message: err.Error(),
		}
	}

	res := p.submitter.CreateServiceRequest(ctx, *tx, token)
	if !res.Success {
		return domain.CandidateResult{
			OrderNo: order.OrderNo,
			Outcome: domain.OutcomeFailed,
			Message: res.Message,
		}
	}

	if err := p.repo.RecordBridged(ctx, *tx, res.ServiceRequestID); err != nil {
		// The remote side now holds the order while the local marker is
		// missing. The next run resubmits; SATUSEHAT dedupes on the
		// organization-scoped identifier.
		log.Error("marker write failed after successful dispatch",
			zap.String("service_request_id", res.ServiceRequestID),
			zap.Error(err))
		return domain.CandidateResult{
			OrderNo:          order.OrderNo,
			Outcome:          domain.OutcomeFailed,
			ServiceRequestID: res.ServiceRequestID,
			Message:          fmt.Sprintf("dispatched but marker write failed: %v", err),
		}
	}

	log.Info("order bridged",
		zap.String("service_request_id", res.ServiceRequestID),
		zap.Int("items", len(tx.Items)))

	return domain.CandidateResult{
		OrderNo:          order.OrderNo,
		Outcome:          domain.OutcomeSent,
		ServiceRequestID: res.ServiceRequestID,
		Message:          res.Message,
	}
}

// since resolves the candidate window: the configured start date, or the
// start of the current day when none is configured.
func (p *Pipeline) since() time.Time {
	if !p.opts.StartDate.IsZero() {
		return p.opts.StartDate
	}
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func countMatches(orderNo string, batches []lis.ResultBatch) int {
	n := 0
	for i := range batches {
		if lis.Correlate(orderNo, batches[i:i+1]) != nil {
			n++
		}
	}
	return n
}
