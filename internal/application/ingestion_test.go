package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cryptoquotes-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func newTestService(st *fakeStore, f *fakeFetcher, opts ...Option) *IngestionService {
	base := []Option{
		WithRange(date(2023, 10, 1), date(2023, 12, 1)),
		WithClock(fakeClock{t: date(2023, 12, 1)}),
		WithIDGen(fixedID("run-1")),
	}
	return NewIngestionService(st, f, append(base, opts...)...)
}

func TestRun_EmptyStoreFetchesFromFixedStart(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	f := &fakeFetcher{out: map[domain.Symbol][]domain.QuoteRecord{
		"SOL": {rec("SOL", date(2023, 10, 1), "21.5"), rec("SOL", date(2023, 10, 2), "22")},
	}}
	sink := &fakeSink{}
	svc := newTestService(st, f, WithSnapshotSink(sink))

	report, err := svc.Run(context.Background(), []domain.Symbol{"SOL"})
	require.NoError(t, err)
	require.Equal(t, "run-1", report.ID)
	require.Len(t, f.calls, 1)
	require.Equal(t, domain.FetchWindow{Start: date(2023, 10, 1), End: date(2023, 12, 1)}, f.calls[0].Window)
	require.Equal(t, domain.OutcomeFetched, report.Outcomes[0].Status)
	require.EqualValues(t, 2, report.Outcomes[0].Written)
	require.Len(t, st.rows["SOL"], 2)
	require.Equal(t, 2, sink.got["SOL"])
}

func TestRun_ResumesAfterLatestAndKeepsHistory(t *testing.T) {
	t.Parallel()
	st := &fakeStore{rows: map[domain.Symbol][]domain.QuoteRecord{
		"SOL": {rec("SOL", date(2023, 11, 14), "50"), rec("SOL", date(2023, 11, 15), "51")},
	}}
	f := &fakeFetcher{out: map[domain.Symbol][]domain.QuoteRecord{
		"SOL": {rec("SOL", date(2023, 11, 16), "52")},
	}}
	svc := newTestService(st, f)

	_, err := svc.Run(context.Background(), []domain.Symbol{"SOL"})
	require.NoError(t, err)
	require.Equal(t, date(2023, 11, 16), f.calls[0].Window.Start)
	require.Equal(t, date(2023, 12, 1), f.calls[0].Window.End)
	require.Len(t, st.rows["SOL"], 3)
	require.Equal(t, 1, st.writes)
	require.Zero(t, st.replaces)
}

func TestRun_SkipsUpToDateSymbolWithoutFetching(t *testing.T) {
	t.Parallel()
	st := &fakeStore{rows: map[domain.Symbol][]domain.QuoteRecord{
		"SOL": {rec("SOL", date(2023, 12, 1), "60")},
	}}
	f := &fakeFetcher{}
	svc := newTestService(st, f)

	report, err := svc.Run(context.Background(), []domain.Symbol{"SOL"})
	require.NoError(t, err)
	require.Empty(t, f.calls)
	require.Equal(t, domain.OutcomeSkipped, report.Outcomes[0].Status)
	require.Contains(t, report.Outcomes[0].Reason, "not before end")
}

func TestRun_MissingEnvelopeIsLoggedAndRunContinues(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	f := &fakeFetcher{
		out: map[domain.Symbol][]domain.QuoteRecord{
			"RAY": {rec("RAY", date(2023, 10, 1), "0.2")},
		},
		errs: map[domain.Symbol]error{
			"SOL": fmt.Errorf("cmc: response lacks data.quotes: %w", domain.ErrNoData),
		},
	}
	svc := newTestService(st, f)

	report, err := svc.Run(context.Background(), []domain.Symbol{"SOL", "RAY"})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	require.Equal(t, domain.OutcomeFailed, report.Outcomes[0].Status)
	require.Contains(t, report.Outcomes[0].Reason, "no data")
	require.NotContains(t, st.rows, domain.Symbol("SOL"))
	require.Equal(t, domain.OutcomeFetched, report.Outcomes[1].Status)
	require.Equal(t, 1, report.Count(domain.OutcomeFailed))
}

func TestRun_EmptyResponseIsNoData(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	svc := newTestService(st, &fakeFetcher{})

	report, err := svc.Run(context.Background(), []domain.Symbol{"PSY"})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNoData, report.Outcomes[0].Status)
	require.Zero(t, st.writes)
}

func TestRun_StoreWriteFailureAbortsRun(t *testing.T) {
	t.Parallel()
	st := &fakeStore{writeErr: ErrRepo}
	f := &fakeFetcher{out: map[domain.Symbol][]domain.QuoteRecord{
		"SOL": {rec("SOL", date(2023, 10, 1), "1")},
		"RAY": {rec("RAY", date(2023, 10, 1), "1")},
	}}
	svc := newTestService(st, f)

	report, err := svc.Run(context.Background(), []domain.Symbol{"SOL", "RAY"})
	require.ErrorIs(t, err, ErrRepo)
	require.Len(t, report.Outcomes, 1)
	require.Equal(t, domain.OutcomeFailed, report.Outcomes[0].Status)
	require.Len(t, f.calls, 1)
}

func TestRun_CoverageFailureAbortsRun(t *testing.T) {
	t.Parallel()
	svc := newTestService(&fakeStore{err: ErrRepo}, &fakeFetcher{})
	_, err := svc.Run(context.Background(), []domain.Symbol{"SOL"})
	require.ErrorIs(t, err, ErrRepo)
}

func TestRun_ReplaceModeKeepsOnlyWrittenRecords(t *testing.T) {
	t.Parallel()
	st := &fakeStore{rows: map[domain.Symbol][]domain.QuoteRecord{
		"SOL": {rec("SOL", date(2023, 11, 1), "50")},
	}}
	f := &fakeFetcher{out: map[domain.Symbol][]domain.QuoteRecord{
		"SOL": {rec("SOL", date(2023, 11, 2), "52"), rec("SOL", date(2023, 11, 3), "53")},
	}}
	svc := newTestService(st, f, WithWriteMode(WriteReplace))

	_, err := svc.Run(context.Background(), []domain.Symbol{"SOL"})
	require.NoError(t, err)
	require.Equal(t, 1, st.replaces)
	require.Len(t, st.rows["SOL"], 2)
	latest, ok, err := st.LatestTimestamp(context.Background(), "SOL")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, date(2023, 11, 3), latest)
}

func TestRun_SnapshotFailureDoesNotFailSymbol(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	f := &fakeFetcher{out: map[domain.Symbol][]domain.QuoteRecord{"SOL": {rec("SOL", date(2023, 10, 1), "1")}}}
	svc := newTestService(st, f, WithSnapshotSink(&fakeSink{err: errors.New("disk full")}))

	report, err := svc.Run(context.Background(), []domain.Symbol{"SOL"})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeFetched, report.Outcomes[0].Status)
}

func TestRun_CanceledContextStops(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{}
	_, err := newTestService(&fakeStore{}, f).Run(ctx, []domain.Symbol{"SOL"})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, f.calls)
}

func TestRun_NoSymbols(t *testing.T) {
	t.Parallel()
	_, err := newTestService(&fakeStore{}, &fakeFetcher{}).Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoSymbols)
}

func TestPlanner_DefaultRangeIsOneYearToNow(t *testing.T) {
	t.Parallel()
	svc := NewIngestionService(&fakeStore{}, &fakeFetcher{}, WithClock(fakeClock{t: date(2024, 3, 10)}))
	p := svc.Planner()
	require.Equal(t, date(2023, 3, 10), p.Start)
	require.Equal(t, date(2024, 3, 10), p.End)
}

func TestTrigger_DuplicateIdempotencyKeyConflicts(t *testing.T) {
	t.Parallel()
	idem := &fakeIdem{}
	svc := newTestService(&fakeStore{}, &fakeFetcher{}, WithIdempotency(idem))
	key := "ik-1"

	_, err := svc.Trigger(context.Background(), []domain.Symbol{"SOL"}, &key)
	require.NoError(t, err)
	_, err = svc.Trigger(context.Background(), []domain.Symbol{"SOL"}, &key)
	require.ErrorIs(t, err, ErrConflict)
	require.True(t, idem.seen["ingest:run:ik-1"])
	require.Empty(t, idem.released)
}

func TestTrigger_AbortedRunReleasesKey(t *testing.T) {
	t.Parallel()
	idem := &fakeIdem{}
	st := &fakeStore{writeErr: ErrRepo}
	f := &fakeFetcher{out: map[domain.Symbol][]domain.QuoteRecord{
		"SOL": {rec("SOL", date(2023, 10, 1), "1")},
	}}
	svc := newTestService(st, f, WithIdempotency(idem))
	key := "ik-2"

	_, err := svc.Trigger(context.Background(), []domain.Symbol{"SOL"}, &key)
	require.ErrorIs(t, err, ErrRepo)
	require.Equal(t, []string{"ingest:run:ik-2"}, idem.released)

	st.writeErr = nil
	report, err := svc.Trigger(context.Background(), []domain.Symbol{"SOL"}, &key)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeFetched, report.Outcomes[0].Status)
}

func TestTrigger_CanceledRunReleasesKey(t *testing.T) {
	t.Parallel()
	idem := &fakeIdem{}
	svc := newTestService(&fakeStore{}, &fakeFetcher{}, WithIdempotency(idem))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	key := "ik-3"

	_, err := svc.Trigger(ctx, []domain.Symbol{"SOL"}, &key)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, idem.seen["ingest:run:ik-3"])
}
