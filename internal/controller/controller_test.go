package controller

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mt5-fvg-bot/internal/analysis"
	"mt5-fvg-bot/internal/cache"
	"mt5-fvg-bot/internal/confluence"
	"mt5-fvg-bot/internal/events"
	"mt5-fvg-bot/internal/execution"
	"mt5-fvg-bot/internal/fvg"
	"mt5-fvg-bot/internal/market"
	"mt5-fvg-bot/internal/predictor"
	"mt5-fvg-bot/internal/quality"
	"mt5-fvg-bot/internal/risk"
	"mt5-fvg-bot/internal/session"
	"mt5-fvg-bot/internal/signal"
	"mt5-fvg-bot/internal/sizing"
	"mt5-fvg-bot/internal/store"
)

func testDeps(t *testing.T, exec *execution.MockExecutor) Deps {
	t.Helper()
	logger := zerolog.Nop()
	scorer, err := quality.NewScorer(quality.DefaultWeights(), logger)
	require.NoError(t, err)

	tracker := session.NewTracker(session.DefaultWindows(), session.DefaultCycleConfig(), logger)
	tracker.SetClock(func() time.Time {
		return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // London
	})

	return Deps{
		Data:       market.NewMockClient(1),
		Detector:   fvg.NewDetector(fvg.DefaultDetectorConfig(), logger),
		Aggregator: confluence.NewAggregator(confluence.DefaultConfig()),
		Scorer:     scorer,
		Predictor:  predictor.New(nil, logger),
		Generator:  signal.NewGenerator(signal.DefaultConfig(), logger),
		Gate:       risk.NewGate(risk.DefaultConfig(), logger),
		Sizer:      sizing.NewSizer(sizing.DefaultConfig(), logger),
		Sessions:   tracker,
		Executor:   exec,
		Account:    exec,
		Positions:  exec,
		Cache:      cache.NewMemoryService(logger),
		Bus:        events.NewBus(),
	}
}

func newActiveController(t *testing.T, cfg Config, exec *execution.MockExecutor) *Controller {
	t.Helper()
	c := New(cfg, testDeps(t, exec), zerolog.Nop())
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.Start())
	return c
}

func strongPattern() *fvg.GapPattern {
	return &fvg.GapPattern{
		ID:         "pat-1",
		Symbol:     "EURUSD",
		Timeframe:  market.M15,
		Direction:  fvg.Bullish,
		LowerBound: 1.0800,
		UpperBound: 1.0806,
		FormedAt:   time.Date(2026, 3, 2, 8, 45, 0, 0, time.UTC),
	}
}

func strongContext() *analysis.MarketContext {
	return &analysis.MarketContext{
		Symbol:       "EURUSD",
		Timeframe:    market.M15,
		CurrentPrice: 1.0815,
		ATR:          0.0015,
		ATRRatio:     1.0,
		EMAFast:      1.0820,
		EMASlow:      1.0805,
		EMATrend:     1.0790,
		RSI:          58,
		VolumeRatio:  1.8,
		GeneratedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestStateMachineLegality(t *testing.T) {
	c := New(DefaultConfig(), testDeps(t, execution.NewMockExecutor()), zerolog.Nop())
	assert.Equal(t, StateInitializing, c.State())

	// Trading cannot start before initialization.
	err := c.Start()
	require.Error(t, err)
	var illegal *ErrIllegalTransition
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, StateInitializing, illegal.From)

	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, StateReady, c.State())
	require.NoError(t, c.Start())
	assert.Equal(t, StateActiveTrading, c.State())
	require.NoError(t, c.Pause())
	require.NoError(t, c.Resume())
}

func TestEmergencyStopAndReset(t *testing.T) {
	exec := execution.NewMockExecutor()
	c := newActiveController(t, DefaultConfig(), exec)

	c.EmergencyStop("manual")
	assert.Equal(t, StateEmergencyStop, c.State())

	// Only a reset leaves the stopped state.
	require.Error(t, c.Start())
	require.Error(t, c.Resume())
	require.NoError(t, c.Reset())
	assert.Equal(t, StateReady, c.State())
}

func TestProcessPatternApprovedDryRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DryRun = true
	exec := execution.NewMockExecutor()
	c := newActiveController(t, cfg, exec)

	res := c.ProcessPattern(context.Background(), strongPattern(), strongContext(), nil)
	require.Equal(t, DecisionApproved, res.Decision, "reason: %s", res.Reason)
	require.NotNil(t, res.Signal)
	assert.Greater(t, res.Lots, 0.0)
	assert.Zero(t, exec.OrderCount(), "dry run must not place orders")
}

func TestProcessPatternExecutesOrder(t *testing.T) {
	exec := execution.NewMockExecutor()
	c := newActiveController(t, DefaultConfig(), exec)

	res := c.ProcessPattern(context.Background(), strongPattern(), strongContext(), nil)
	require.Equal(t, DecisionApproved, res.Decision, "reason: %s", res.Reason)
	assert.NotZero(t, res.Ticket)
	assert.Equal(t, 1, exec.OrderCount())
	assert.Equal(t, 1, c.deps.Gate.OpenPositions())
}

func TestProcessPatternRejectedWhenStopped(t *testing.T) {
	exec := execution.NewMockExecutor()
	c := newActiveController(t, DefaultConfig(), exec)
	c.EmergencyStop("test")

	res := c.ProcessPattern(context.Background(), strongPattern(), strongContext(), nil)
	assert.Equal(t, DecisionRejected, res.Decision)
	assert.Zero(t, exec.OrderCount())
}

func TestProcessPatternDedupAcrossPasses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DryRun = true
	exec := execution.NewMockExecutor()
	c := newActiveController(t, cfg, exec)

	first := c.ProcessPattern(context.Background(), strongPattern(), strongContext(), nil)
	require.Equal(t, DecisionApproved, first.Decision)
	second := c.ProcessPattern(context.Background(), strongPattern(), strongContext(), nil)
	assert.Equal(t, DecisionFiltered, second.Decision)
	assert.Equal(t, "pattern already processed", second.Reason)
}

func TestProcessPatternFiltersWeakQuality(t *testing.T) {
	exec := execution.NewMockExecutor()
	c := newActiveController(t, DefaultConfig(), exec)

	p := strongPattern()
	p.FormedAt = time.Date(2026, 2, 25, 9, 0, 0, 0, time.UTC) // stale
	mc := strongContext()
	mc.EMAFast, mc.EMASlow, mc.EMATrend = 1.0790, 1.0805, 1.0820 // bearish stack
	mc.VolumeRatio = 0.3

	res := c.ProcessPattern(context.Background(), p, mc, nil)
	assert.Equal(t, DecisionFiltered, res.Decision)
	assert.Zero(t, exec.OrderCount())
}

func TestHealthCheckDrawdownTriggersEmergencyStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DrawdownCeilingPct = 10
	exec := execution.NewMockExecutor()
	c := newActiveController(t, cfg, exec)

	exec.Account.Equity = 8500 // 15% below the initial 10000 peak
	c.healthCheck(context.Background())
	assert.Equal(t, StateEmergencyStop, c.State())
}

func TestDashboardSnapshot(t *testing.T) {
	exec := execution.NewMockExecutor()
	c := newActiveController(t, DefaultConfig(), exec)

	snap := c.DashboardSnapshot()
	assert.Equal(t, string(StateActiveTrading), snap["state"])
	assert.Contains(t, snap, "sessions")
	assert.Contains(t, snap, "risk")
	assert.Contains(t, snap, "signals")
	assert.Contains(t, snap, "open_trades")
	assert.Contains(t, snap, "counters")
}

// fakeStore captures persistence calls so tests can verify what the
// controller writes without a database.
type fakeStore struct {
	outcomes []fakeOutcome
	fills    []string
	trades   []store.TradeRecord
	closes   map[string]float64
}

type fakeOutcome struct {
	patternID string
	filled    bool
	features  []float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{closes: make(map[string]float64)}
}

func (f *fakeStore) InsertOutcome(_ context.Context, p *fvg.GapPattern, features []float64) error {
	f.outcomes = append(f.outcomes, fakeOutcome{patternID: p.ID, filled: p.Filled, features: features})
	return nil
}

func (f *fakeStore) MarkOutcomeFilled(_ context.Context, patternID string, _ time.Time) error {
	f.fills = append(f.fills, patternID)
	return nil
}

func (f *fakeStore) InsertTrade(_ context.Context, rec store.TradeRecord) error {
	f.trades = append(f.trades, rec)
	return nil
}

func (f *fakeStore) CloseTrade(_ context.Context, signalID string, pnlPct float64) error {
	f.closes[signalID] = pnlPct
	return nil
}

func TestEmergencyStopFromAnyState(t *testing.T) {
	// Before initialization completes.
	c := New(DefaultConfig(), testDeps(t, execution.NewMockExecutor()), zerolog.Nop())
	require.Equal(t, StateInitializing, c.State())
	c.EmergencyStop("bridge unreachable")
	assert.Equal(t, StateEmergencyStop, c.State())

	// From maintenance.
	c2 := New(DefaultConfig(), testDeps(t, execution.NewMockExecutor()), zerolog.Nop())
	require.NoError(t, c2.Initialize(context.Background()))
	require.NoError(t, c2.transition(StateMaintenance, "test"))
	c2.EmergencyStop("operator")
	assert.Equal(t, StateEmergencyStop, c2.State())
}

func TestMonitorPositionsClosesTradeLifecycle(t *testing.T) {
	exec := execution.NewMockExecutor()
	deps := testDeps(t, exec)
	fs := newFakeStore()
	deps.DB = fs
	c := New(DefaultConfig(), deps, zerolog.Nop())
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.Start())

	res := c.ProcessPattern(context.Background(), strongPattern(), strongContext(), nil)
	require.Equal(t, DecisionApproved, res.Decision, "reason: %s", res.Reason)
	require.NotZero(t, res.Ticket)
	require.Equal(t, 1, c.deps.Gate.OpenPositions())

	// Still open at the broker: nothing resolves.
	c.monitorPositions(context.Background())
	assert.Equal(t, 1, c.deps.Gate.OpenPositions())

	// Broker closes the position at a 50 currency-unit loss, which is
	// -0.5% of the 10000 equity captured at open.
	exec.SettlePosition(res.Ticket, -50)
	c.monitorPositions(context.Background())

	assert.Equal(t, 0, c.deps.Gate.OpenPositions())
	assert.InDelta(t, -0.5, fs.closes[res.Signal.ID], 1e-9)

	snap := c.deps.Sessions.Snapshot()
	cycle := snap["cycle"].(map[string]interface{})
	assert.InDelta(t, -0.5, cycle["realized_pct"].(float64), 1e-9)

	// Resolved tickets are dropped from tracking.
	c.monitorPositions(context.Background())
	assert.Len(t, fs.closes, 1)
}

func TestPersistOutcomeRecordsDetections(t *testing.T) {
	exec := execution.NewMockExecutor()
	deps := testDeps(t, exec)
	fs := newFakeStore()
	deps.DB = fs
	c := New(DefaultConfig(), deps, zerolog.Nop())

	// An unfilled pattern is stored at detection with real context
	// features, not marked filled.
	c.persistOutcome(context.Background(), strongPattern(), strongContext(), nil)
	require.Len(t, fs.outcomes, 1)
	assert.False(t, fs.outcomes[0].filled)
	assert.Empty(t, fs.fills)
	// gap/ATR = 0.0006/0.0015, so the snapshot carries observed
	// market state rather than neutral defaults.
	assert.InDelta(t, 0.4, fs.outcomes[0].features[0], 1e-9)

	filled := strongPattern()
	filled.ID = "pat-2"
	filled.Filled = true
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	filled.FilledAt = &at
	c.persistOutcome(context.Background(), filled, strongContext(), nil)
	require.Len(t, fs.outcomes, 2)
	assert.True(t, fs.outcomes[1].filled)
	assert.Equal(t, []string{"pat-2"}, fs.fills)
}

func TestProcessPatternSignalLifecycleFields(t *testing.T) {
	exec := execution.NewMockExecutor()
	c := newActiveController(t, DefaultConfig(), exec)

	res := c.ProcessPattern(context.Background(), strongPattern(), strongContext(), nil)
	require.Equal(t, DecisionApproved, res.Decision, "reason: %s", res.Reason)
	require.NotNil(t, res.Signal)
	assert.Equal(t, signal.StatusExecuted, res.Signal.Status)
	assert.Equal(t, res.Lots, res.Signal.LotSize)
	assert.Greater(t, res.Signal.RiskPercentage, 0.0)
}

func TestProcessPatternRejectedSignalStatus(t *testing.T) {
	exec := execution.NewMockExecutor()
	c := newActiveController(t, DefaultConfig(), exec)

	for i := 0; i < 3; i++ {
		c.deps.Gate.RegisterOpen("GBPUSD")
	}
	res := c.ProcessPattern(context.Background(), strongPattern(), strongContext(), nil)
	assert.Equal(t, DecisionRejected, res.Decision)
	require.NotNil(t, res.Signal)
	assert.Equal(t, signal.StatusRejected, res.Signal.Status)
}

func TestActivityCounters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DryRun = true
	exec := execution.NewMockExecutor()
	c := newActiveController(t, cfg, exec)

	res := c.ProcessPattern(context.Background(), strongPattern(), strongContext(), nil)
	require.Equal(t, DecisionApproved, res.Decision)

	snap := c.DashboardSnapshot()
	counters := snap["counters"].(map[string]interface{})
	assert.EqualValues(t, 1, counters["signals_generated"])
	assert.EqualValues(t, 0, counters["trades_executed"], "dry run places no orders")
}
