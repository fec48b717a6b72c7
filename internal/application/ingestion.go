package application

import (
	"context"
	"fmt"
	"time"

	"cryptoquotes-service/internal/domain"

	"go.uber.org/zap"
)

type WriteMode string

const (
	// WriteUpsert merges fetched records into the stored history by (symbol, timestamp).
	WriteUpsert WriteMode = "upsert"
	// WriteReplace overwrites the symbol's whole dataset with the fetched records.
	// History outside the fetched window is lost.
	WriteReplace WriteMode = "replace"
)

// IngestionService reconciles the local store with the remote API, one symbol
// at a time: read coverage, plan a window, fetch it, persist the result.
type IngestionService struct {
	store   QuoteStore
	fetcher QuoteFetcher
	uow     UnitOfWork
	sink    SnapshotSink
	idem    IdempotencyStore
	clock   Clock
	idgen   IDGen
	log     *zap.Logger

	start time.Time
	end   time.Time
	mode  WriteMode
}

type Option func(*IngestionService)

func WithClock(c Clock) Option { return func(s *IngestionService) { s.clock = c } }
func WithIDGen(g IDGen) Option { return func(s *IngestionService) { s.idgen = g } }
func WithUnitOfWork(u UnitOfWork) Option { return func(s *IngestionService) { s.uow = u } }
func WithSnapshotSink(k SnapshotSink) Option { return func(s *IngestionService) { s.sink = k } }
func WithIdempotency(i IdempotencyStore) Option {
	return func(s *IngestionService) { s.idem = i }
}
func WithLogger(l *zap.Logger) Option { return func(s *IngestionService) { s.log = l } }
func WithWriteMode(m WriteMode) Option { return func(s *IngestionService) { s.mode = m } }
func WithRange(start, end time.Time) Option {
	return func(s *IngestionService) { s.start, s.end = start, end }
}

func NewIngestionService(store QuoteStore, fetcher QuoteFetcher, opts ...Option) *IngestionService {
	s := &IngestionService{
		store:   store,
		fetcher: fetcher,
		mode:    WriteUpsert,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.idgen == nil {
		s.idgen = defaultIDGen{}
	}
	if s.uow == nil {
		s.uow = NoopUoW{}
	}
	if s.idem == nil {
		s.idem = NoopIdempotency{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Planner returns the planner for a run starting now. A zero end means the
// current time; a zero start means one year before the end.
func (s *IngestionService) Planner() Planner {
	end := s.end
	if end.IsZero() {
		end = s.clock.Now()
	}
	start := s.start
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}
	return Planner{Start: start.UTC(), End: end.UTC()}
}

// Trigger runs one ingestion unless idem was already used for an earlier run.
// The key is released again when the run aborts, so the caller may retry.
func (s *IngestionService) Trigger(ctx context.Context, symbols []domain.Symbol, idem *string) (domain.RunReport, error) {
	if idem == nil || *idem == "" {
		return s.Run(ctx, symbols)
	}
	key := runKey(*idem)
	ok, err := s.idem.TryReserve(ctx, key)
	if err != nil {
		return domain.RunReport{}, fmt.Errorf("ingest: reserve idempotency key: %w", err)
	}
	if !ok {
		return domain.RunReport{}, ErrConflict
	}
	report, err := s.Run(ctx, symbols)
	if err != nil {
		if relErr := s.idem.Release(context.WithoutCancel(ctx), key); relErr != nil {
			s.log.Warn("ingest.idempotency_release_failed", zap.String("key", key), zap.Error(relErr))
		}
	}
	return report, err
}

// Run processes symbols sequentially. Fetch failures and skipped windows are
// recorded in the report and do not stop the run; store failures and context
// cancellation abort it and are returned together with the partial report.
func (s *IngestionService) Run(ctx context.Context, symbols []domain.Symbol) (domain.RunReport, error) {
	if len(symbols) == 0 {
		return domain.RunReport{}, ErrNoSymbols
	}
	planner := s.Planner()
	report := domain.RunReport{ID: s.idgen.NewID(), StartedAt: s.clock.Now()}
	log := s.log.With(zap.String("run_id", report.ID))
	log.Info("ingest.run_start",
		zap.Int("symbols", len(symbols)),
		zap.Time("start", planner.Start),
		zap.Time("end", planner.End),
		zap.String("write_mode", string(s.mode)),
	)

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = s.clock.Now()
			log.Warn("ingest.run_canceled", zap.Error(err))
			return report, err
		}
		out, err := s.ingestSymbol(ctx, log.With(zap.String("symbol", string(sym))), planner, sym)
		report.Outcomes = append(report.Outcomes, out)
		if err != nil {
			report.FinishedAt = s.clock.Now()
			log.Error("ingest.run_aborted", zap.String("symbol", string(sym)), zap.Error(err))
			return report, err
		}
	}

	report.FinishedAt = s.clock.Now()
	log.Info("ingest.run_done",
		zap.Int("fetched", report.Count(domain.OutcomeFetched)),
		zap.Int("skipped", report.Count(domain.OutcomeSkipped)),
		zap.Int("no_data", report.Count(domain.OutcomeNoData)),
		zap.Int("failed", report.Count(domain.OutcomeFailed)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *IngestionService) ingestSymbol(ctx context.Context, log *zap.Logger, planner Planner, sym domain.Symbol) (domain.SymbolOutcome, error) {
	out := domain.SymbolOutcome{Symbol: sym, Status: domain.OutcomeFailed}

	latest, ok, err := s.store.LatestTimestamp(ctx, sym)
	if err != nil {
		out.Reason = err.Error()
		return out, fmt.Errorf("ingest: coverage for %s: %w", sym, err)
	}
	plan := planner.Plan(sym, domain.Coverage{Latest: latest, HasData: ok})
	out.Window = plan.Window
	if plan.Skip {
		out.Status, out.Reason = domain.OutcomeSkipped, plan.Reason
		log.Info("ingest.symbol_skipped", zap.String("reason", plan.Reason))
		return out, nil
	}

	log.Info("ingest.symbol_fetch", zap.Stringer("window", plan.Window), zap.Bool("has_data", ok))
	records, err := s.fetcher.Fetch(ctx, sym, plan.Window)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			out.Reason = ctxErr.Error()
			return out, ctxErr
		}
		out.Reason = err.Error()
		log.Warn("ingest.symbol_failed", zap.Error(err))
		return out, nil
	}
	if len(records) == 0 {
		out.Status, out.Reason = domain.OutcomeNoData, "no quotes in window"
		log.Info("ingest.symbol_no_data")
		return out, nil
	}

	var written int64
	err = s.uow.Do(ctx, func(ctx context.Context) error {
		var err error
		if s.mode == WriteReplace {
			written, err = s.store.Replace(ctx, sym, records)
		} else {
			written, err = s.store.Write(ctx, sym, records)
		}
		return err
	})
	if err != nil {
		out.Reason = err.Error()
		return out, fmt.Errorf("ingest: write %s: %w", sym, err)
	}
	out.Status, out.Written = domain.OutcomeFetched, written
	log.Info("ingest.symbol_stored", zap.Int64("written", written))

	s.snapshot(ctx, log, sym)
	return out, nil
}

func (s *IngestionService) snapshot(ctx context.Context, log *zap.Logger, sym domain.Symbol) {
	if s.sink == nil {
		return
	}
	all, err := s.store.List(ctx, sym, time.Time{}, time.Time{})
	if err != nil {
		log.Warn("ingest.snapshot_read_failed", zap.Error(err))
		return
	}
	if err := s.sink.Snapshot(ctx, sym, all); err != nil {
		log.Warn("ingest.snapshot_failed", zap.Error(err))
		return
	}
	log.Info("ingest.snapshot_written", zap.Int("rows", len(all)))
}
