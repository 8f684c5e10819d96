package ledger

import (
	"context"
	"time"

	"payhook/internal/logger"
	"payhook/pkg/metrics"
)

// Service is the ledger as the router sees it. Writes never fail the caller:
// a lost audit row must not turn a successfully reconciled event into a
// provider retry.
type Service struct {
	repo          Repository
	logger        logger.Logger
	testFlag      bool
	reprocessable []Status
}

// NewService builds the ledger. Outside production every row is written with
// test_flag set.
func NewService(repo Repository, log logger.Logger, production, retryErrored bool) *Service {
	return &Service{
		repo:          repo,
		logger:        log,
		testFlag:      !production,
		reprocessable: Reprocessable(retryErrored),
	}
}

func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ObserveLedgerOperation(operation, status, time.Since(start))
}

func (s *Service) FindLatest(ctx context.Context, eventID, eventType string) (*Entry, error) {
	start := time.Now()
	entry, err := s.repo.FindLatest(ctx, eventID, eventType)
	observe("find_latest", start, err)
	return entry, err
}

// Upsert writes rec and returns the row id, or "" when the write failed.
func (s *Service) Upsert(ctx context.Context, rec Record) string {
	rec.TestFlag = s.testFlag

	start := time.Now()
	id, err := s.repo.Upsert(ctx, rec)
	observe("upsert", start, err)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to write ledger entry",
			"event_id", rec.EventID,
			"status", rec.Status,
			"error", err,
		)
		return ""
	}
	return id
}

// Claim marks eventID processing unless a previous attempt already settled it.
func (s *Service) Claim(ctx context.Context, eventID, eventType string) (*Entry, bool, error) {
	start := time.Now()
	entry, claimed, err := s.repo.Claim(ctx, Record{
		EventID:   eventID,
		EventType: eventType,
		Status:    StatusProcessing,
		TestFlag:  s.testFlag,
	}, s.reprocessable)
	observe("claim", start, err)
	return entry, claimed, err
}

func (s *Service) Requeue(ctx context.Context, eventID string) (*Entry, error) {
	start := time.Now()
	entry, err := s.repo.Requeue(ctx, eventID)
	observe("requeue", start, err)
	if err == nil {
		s.logger.InfowCtx(ctx, "Ledger entry requeued", "event_id", eventID)
	}
	return entry, err
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Entry, error) {
	start := time.Now()
	entries, err := s.repo.List(ctx, filter)
	observe("list", start, err)
	return entries, err
}
