package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

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

// Decision classifies the outcome of one pattern evaluation.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionFiltered Decision = "FILTERED"
	DecisionRejected Decision = "REJECTED"
	DecisionError    Decision = "ERROR"
)

// ProcessResult is the outcome of evaluating one pattern end to end.
type ProcessResult struct {
	Decision Decision            `json:"decision"`
	Reason   string              `json:"reason,omitempty"`
	Signal   *signal.TradeSignal `json:"signal,omitempty"`
	Ticket   int64               `json:"ticket,omitempty"`
	Lots     float64             `json:"lots,omitempty"`
}

// Config bounds the controller's run loop.
type Config struct {
	Symbols            []string           `json:"symbols"`
	Timeframes         []market.Timeframe `json:"timeframes"`
	PollInterval       time.Duration      `json:"poll_interval"`
	HealthInterval     time.Duration      `json:"health_interval"`
	HistoryBars        int                `json:"history_bars"`
	DrawdownCeilingPct float64            `json:"drawdown_ceiling_pct"`
	DryRun             bool               `json:"dry_run"`
	MagicNumber        int                `json:"magic_number"`
}

// DefaultConfig returns a single-symbol M15 profile.
func DefaultConfig() Config {
	return Config{
		Symbols:            []string{"EURUSD"},
		Timeframes:         []market.Timeframe{market.M15, market.H1, market.H4},
		PollInterval:       time.Minute,
		HealthInterval:     30 * time.Second,
		HistoryBars:        200,
		DrawdownCeilingPct: 10.0,
		MagicNumber:        271828,
	}
}

// Store persists patterns and trades. *store.DB satisfies it; tests
// substitute an in-memory fake.
type Store interface {
	InsertOutcome(ctx context.Context, p *fvg.GapPattern, features []float64) error
	MarkOutcomeFilled(ctx context.Context, patternID string, filledAt time.Time) error
	InsertTrade(ctx context.Context, rec store.TradeRecord) error
	CloseTrade(ctx context.Context, signalID string, pnlPct float64) error
}

// Deps are the controller's collaborators, injected by the composition
// root so tests can swap any of them.
type Deps struct {
	Data       market.DataClient
	Detector   *fvg.Detector
	Aggregator *confluence.Aggregator
	Scorer     *quality.Scorer
	Predictor  *predictor.Predictor
	Generator  *signal.Generator
	Gate       *risk.Gate
	Sizer      *sizing.Sizer
	Sessions   *session.Tracker
	Executor   execution.Executor
	Account    execution.AccountProvider
	Positions  execution.PositionProvider
	DB         Store
	Cache      *cache.Service
	Bus        *events.Bus
}

// openTrade is the controller's record of a live position, kept until
// the broker reports it closed.
type openTrade struct {
	signalID string
	symbol   string
	session  session.Name
	equity   float64 // equity at open, the base for realized PnL percent
}

// Controller drives the decision pipeline: detect, corroborate, grade,
// predict, gate, size, execute. It owns the operating state machine.
type Controller struct {
	mu         sync.Mutex
	state      State
	cfg        Config
	deps       Deps
	peakEquity float64
	lastEquity float64
	processed  int64
	approved   int64
	openTrades map[int64]openTrade
	startedAt  time.Time
	logger     zerolog.Logger
}

// New builds a Controller in INITIALIZING state.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultConfig().HealthInterval
	}
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = DefaultConfig().HistoryBars
	}
	return &Controller{
		state:      StateInitializing,
		cfg:        cfg,
		deps:       deps,
		openTrades: make(map[int64]openTrade),
		startedAt:  time.Now(),
		logger:     logger.With().Str("component", "controller").Logger(),
	}
}

// State returns the current operating state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// transition applies a state change, publishing it on success.
func (c *Controller) transition(to State, reason string) error {
	c.mu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.mu.Unlock()
		return &ErrIllegalTransition{From: from, To: to}
	}
	c.state = to
	c.mu.Unlock()

	c.logger.Info().Str("from", string(from)).Str("to", string(to)).
		Str("reason", reason).Msg("State changed")
	if c.deps.Bus != nil {
		c.deps.Bus.PublishStateChanged(string(from), string(to), reason)
	}
	return nil
}

// Initialize verifies collaborators and moves to READY.
func (c *Controller) Initialize(ctx context.Context) error {
	if c.deps.Account != nil {
		acct, err := c.deps.Account.GetAccount(ctx)
		if err != nil {
			return fmt.Errorf("account check failed: %w", err)
		}
		c.mu.Lock()
		c.peakEquity = acct.Equity
		c.lastEquity = acct.Equity
		c.mu.Unlock()
	}
	return c.transition(StateReady, "initialization complete")
}

// Start moves READY to ACTIVE_TRADING.
func (c *Controller) Start() error {
	if err := c.transition(StateActiveTrading, "operator start"); err != nil {
		return err
	}
	c.deps.Gate.SetEnabled(true)
	return nil
}

// Pause suspends new signal generation. Open positions are untouched.
func (c *Controller) Pause() error {
	return c.transition(StatePaused, "operator pause")
}

// Resume returns a paused controller to active trading.
func (c *Controller) Resume() error {
	return c.transition(StateActiveTrading, "operator resume")
}

// EmergencyStop halts trading immediately. Callable from any trading
// state; the gate closes even if the transition fails so a stuck state
// machine cannot keep trading alive.
func (c *Controller) EmergencyStop(reason string) {
	c.deps.Gate.SetEnabled(false)
	if err := c.transition(StateEmergencyStop, reason); err != nil {
		c.logger.Error().Err(err).Msg("Emergency stop transition rejected, gate closed anyway")
	}
	if c.deps.Bus != nil {
		c.deps.Bus.PublishEmergencyStop(reason)
	}
}

// Reset returns an emergency-stopped controller to READY after
// operator review.
func (c *Controller) Reset() error {
	return c.transition(StateReady, "operator reset")
}

// Shutdown moves to the terminal state.
func (c *Controller) Shutdown() {
	if err := c.transition(StateShutdown, "shutdown"); err != nil {
		c.logger.Warn().Err(err).Msg("Shutdown from terminal state")
	}
}

// Run drives the evaluation and health loops until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	evalTicker := time.NewTicker(c.cfg.PollInterval)
	healthTicker := time.NewTicker(c.cfg.HealthInterval)
	defer evalTicker.Stop()
	defer healthTicker.Stop()

	c.logger.Info().Strs("symbols", c.cfg.Symbols).
		Dur("poll_interval", c.cfg.PollInterval).Msg("Run loop started")

	for {
		select {
		case <-ctx.Done():
			c.Shutdown()
			return
		case <-evalTicker.C:
			if c.State() != StateActiveTrading {
				continue
			}
			for _, symbol := range c.cfg.Symbols {
				c.EvaluateSymbol(ctx, symbol)
			}
		case <-healthTicker.C:
			c.monitorPositions(ctx)
			c.healthCheck(ctx)
		}
	}
}

// EvaluateSymbol runs one full pipeline pass for a symbol.
func (c *Controller) EvaluateSymbol(ctx context.Context, symbol string) {
	byTimeframe := make(map[market.Timeframe][]fvg.GapPattern)
	var primaryCandles []market.Candle

	for _, tf := range c.cfg.Timeframes {
		candles, err := c.deps.Data.GetOHLC(ctx, symbol, tf, c.cfg.HistoryBars)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).
				Msg("OHLC fetch failed, skipping pass")
			if c.deps.Bus != nil {
				c.deps.Bus.PublishError("controller", "ohlc fetch failed", err)
			}
			return
		}
		if tf == c.primaryTimeframe() {
			primaryCandles = candles
		}
		detected := c.deps.Detector.Detect(candles)
		for i := range detected {
			p := &detected[i]
			fvg.ObserveFill(p, candles)
			c.announcePattern(p)
		}
		byTimeframe[tf] = detected
	}

	price, err := c.deps.Data.GetCurrentPrice(ctx, symbol)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Price fetch failed, skipping pass")
		return
	}
	mc, err := analysis.BuildContext(primaryCandles, price, analysis.ContextConfig{})
	if err != nil {
		c.logger.Debug().Err(err).Str("symbol", symbol).Msg("Context unavailable")
		mc = nil
	}

	confResults := c.deps.Aggregator.Aggregate(byTimeframe)
	for i := range byTimeframe[c.primaryTimeframe()] {
		p := &byTimeframe[c.primaryTimeframe()][i]
		c.persistOutcome(ctx, p, mc, confResults)
		res := c.ProcessPattern(ctx, p, mc, confResults)
		c.recordDecision(p, res)
	}
}

// ProcessPattern runs the decision chain for one detected pattern. The
// operating state is rechecked at the generation and execution
// boundaries because a pause or stop may land mid-pipeline.
func (c *Controller) ProcessPattern(ctx context.Context, p *fvg.GapPattern, mc *analysis.MarketContext, confResults []confluence.Result) ProcessResult {
	c.mu.Lock()
	c.processed++
	c.mu.Unlock()

	if c.State() != StateActiveTrading {
		return ProcessResult{Decision: DecisionRejected, Reason: "not in active trading state"}
	}
	if c.deps.Cache != nil && c.deps.Cache.SeenPattern(ctx, p.ID) {
		return ProcessResult{Decision: DecisionFiltered, Reason: "pattern already processed"}
	}

	sess := c.deps.Sessions.Current()
	strength := confluence.StrengthFor(confResults, p.ID, 0.3)
	score := c.deps.Scorer.Score(p, mc, strength, sess)
	pred := c.deps.Predictor.Predict(p, mc, strength, sess)

	sig, filterReason := c.deps.Generator.Generate(p, score, pred, mc)
	if sig == nil {
		if c.deps.Bus != nil {
			c.deps.Bus.PublishSignalFiltered(p.ID, p.Symbol, filterReason)
		}
		return ProcessResult{Decision: DecisionFiltered, Reason: filterReason}
	}
	if c.deps.Bus != nil {
		c.deps.Bus.PublishSignalGenerated(sig.ID, p.ID, sig.Symbol, string(sig.Direction), sig.Entry, sig.StopLoss)
	}
	if c.deps.Cache != nil {
		c.deps.Cache.IncrCounter(ctx, "signals_generated")
	}

	if ok, reason := c.deps.Sessions.CanTrade(); !ok {
		return c.reject(sig, reason)
	}
	if ok, reason := c.deps.Gate.Check(sig.Symbol, strength); !ok {
		return c.reject(sig, reason)
	}
	level := c.deps.Gate.LevelFor(strength)
	if level == risk.LevelBlocked {
		return c.reject(sig, "risk level blocked")
	}

	acct, err := c.deps.Account.GetAccount(ctx)
	if err != nil {
		return ProcessResult{Decision: DecisionError, Reason: fmt.Sprintf("account read failed: %v", err)}
	}
	spec, err := c.deps.Data.GetSymbolSpec(ctx, sig.Symbol)
	if err != nil {
		spec = market.DefaultSpec(sig.Symbol)
	}

	atrRatio := 1.0
	if mc != nil {
		atrRatio = mc.ATRRatio
	}
	sized := c.deps.Sizer.Size(sizing.Request{
		Equity:          acct.Equity,
		Spec:            spec,
		GapSizePips:     spec.PriceToPips(p.Size()),
		Tier:            sig.QualityTier,
		Session:         sess,
		CycleTradeCount: c.deps.Sessions.CycleTradeCount(),
		Volatility:      sizing.VolatilityFor(atrRatio),
		RiskMultiplier:  level.SizeMultiplier(),
	})
	if sized.Emergency {
		return c.reject(sig, "sizing degraded to emergency minimum")
	}
	sig.LotSize = sized.Lots
	if acct.Equity > 0 {
		sig.RiskPercentage = sized.RiskAmount / acct.Equity * 100
	}

	// Final state and validity checks before money moves.
	if c.State() != StateActiveTrading {
		return c.reject(sig, "state changed during evaluation")
	}
	if sig.Expired(time.Now()) {
		sig.Status = signal.StatusExpired
		return ProcessResult{Decision: DecisionRejected, Reason: "signal expired", Signal: sig}
	}
	if c.cfg.DryRun {
		c.markProcessed(ctx, p)
		return ProcessResult{Decision: DecisionApproved, Reason: "dry run", Signal: sig, Lots: sized.Lots}
	}

	order := execution.OrderRequest{
		SignalID:    sig.ID,
		Symbol:      sig.Symbol,
		Direction:   sig.Direction,
		Lots:        sized.Lots,
		Entry:       sig.Entry,
		StopLoss:    sig.StopLoss,
		TakeProfit:  sig.TakeProfits[0],
		Comment:     "fvg " + string(sig.QualityTier),
		MagicNumber: c.cfg.MagicNumber,
	}
	result, err := c.deps.Executor.PlaceOrder(ctx, order)
	if err != nil {
		if c.deps.Bus != nil {
			c.deps.Bus.PublishTradeRejected(sig.ID, sig.Symbol, err.Error())
		}
		return ProcessResult{Decision: DecisionError, Reason: fmt.Sprintf("order failed: %v", err), Signal: sig}
	}

	if err := c.deps.Sessions.RecordTrade(); err != nil {
		// The order is live but bookkeeping refused it. This is an
		// invariant break; stop and let the operator reconcile.
		c.EmergencyStop(fmt.Sprintf("trade recorded outside session budget: %v", err))
	}
	c.deps.Gate.RegisterOpen(sig.Symbol)
	c.markProcessed(ctx, p)
	sig.Status = signal.StatusExecuted

	c.mu.Lock()
	c.approved++
	c.openTrades[result.Ticket] = openTrade{
		signalID: sig.ID,
		symbol:   sig.Symbol,
		session:  sess,
		equity:   acct.Equity,
	}
	c.mu.Unlock()

	if c.deps.Bus != nil {
		c.deps.Bus.PublishTradeExecuted(sig.ID, sig.Symbol, result.Ticket, sized.Lots, result.FillPrice)
	}
	if c.deps.Cache != nil {
		c.deps.Cache.IncrCounter(ctx, "trades_executed")
	}
	if c.deps.DB != nil {
		rec := store.TradeRecord{
			SignalID:   sig.ID,
			PatternID:  p.ID,
			Symbol:     sig.Symbol,
			Direction:  string(sig.Direction),
			Lots:       sized.Lots,
			Entry:      sig.Entry,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfits[0],
			Ticket:     result.Ticket,
			FillPrice:  result.FillPrice,
			ExecutedAt: result.ExecutedAt,
		}
		if err := c.deps.DB.InsertTrade(ctx, rec); err != nil {
			c.logger.Error().Err(err).Str("signal", sig.ID).Msg("Trade record insert failed")
		}
	}

	c.logger.Info().Str("signal", sig.ID).Int64("ticket", result.Ticket).
		Float64("lots", sized.Lots).Msg("Trade executed")
	return ProcessResult{Decision: DecisionApproved, Signal: sig, Ticket: result.Ticket, Lots: sized.Lots}
}

func (c *Controller) reject(sig *signal.TradeSignal, reason string) ProcessResult {
	sig.Status = signal.StatusRejected
	if c.deps.Bus != nil {
		c.deps.Bus.PublishTradeRejected(sig.ID, sig.Symbol, reason)
	}
	return ProcessResult{Decision: DecisionRejected, Reason: reason, Signal: sig}
}

// announcePattern publishes a detection.
func (c *Controller) announcePattern(p *fvg.GapPattern) {
	if c.deps.Bus != nil {
		c.deps.Bus.PublishPatternDetected(p.ID, p.Symbol, string(p.Timeframe), string(p.Direction), p.Size())
	}
}

// persistOutcome stores every primary-timeframe pattern with the
// market context and confluence observed at detection, then records
// the fill once the gap trades. Unfilled rows stay label-zero, so the
// trainer sees both classes.
func (c *Controller) persistOutcome(ctx context.Context, p *fvg.GapPattern, mc *analysis.MarketContext, confResults []confluence.Result) {
	if c.deps.DB == nil {
		return
	}
	strength := confluence.StrengthFor(confResults, p.ID, 0.3)
	feats := predictor.FeatureVector(p, mc, strength, c.deps.Sessions.Current())
	if err := c.deps.DB.InsertOutcome(ctx, p, feats); err != nil {
		c.logger.Error().Err(err).Str("pattern", p.ID).Msg("Outcome insert failed")
	}
	if p.Filled {
		filledAt := time.Now().UTC()
		if p.FilledAt != nil {
			filledAt = *p.FilledAt
		}
		if err := c.deps.DB.MarkOutcomeFilled(ctx, p.ID, filledAt); err != nil {
			c.logger.Error().Err(err).Str("pattern", p.ID).Msg("Fill update failed")
		}
	}
}

// monitorPositions reconciles tracked tickets against the broker. A
// tracked ticket that is no longer open is resolved through history,
// its PnL fed back to the session cycle and its gate slot freed.
func (c *Controller) monitorPositions(ctx context.Context) {
	if c.deps.Positions == nil {
		return
	}
	c.mu.Lock()
	tracked := make(map[int64]openTrade, len(c.openTrades))
	for t, ot := range c.openTrades {
		tracked[t] = ot
	}
	c.mu.Unlock()
	if len(tracked) == 0 {
		return
	}

	live, err := c.deps.Positions.GetPositions(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Position poll failed")
		return
	}
	open := make(map[int64]bool, len(live))
	for _, pos := range live {
		open[pos.Ticket] = true
	}

	for ticket, ot := range tracked {
		if open[ticket] {
			continue
		}
		closed, err := c.deps.Positions.GetClosedPosition(ctx, ticket)
		if err != nil {
			// History may lag the position list; retry next tick.
			c.logger.Warn().Err(err).Int64("ticket", ticket).Msg("Closed position unresolved")
			continue
		}

		pnlPct := 0.0
		if ot.equity > 0 {
			pnlPct = closed.Profit / ot.equity * 100
		}
		c.deps.Sessions.RecordOutcome(ot.session, pnlPct)
		c.deps.Gate.RegisterClose(ot.symbol)
		if c.deps.DB != nil {
			if err := c.deps.DB.CloseTrade(ctx, ot.signalID, pnlPct); err != nil {
				c.logger.Error().Err(err).Str("signal", ot.signalID).Msg("Trade close record failed")
			}
		}
		if c.deps.Bus != nil {
			c.deps.Bus.PublishTradeClosed(ot.signalID, ot.symbol, ticket, pnlPct)
		}

		c.mu.Lock()
		delete(c.openTrades, ticket)
		c.mu.Unlock()

		c.logger.Info().Int64("ticket", ticket).Str("symbol", ot.symbol).
			Float64("profit", closed.Profit).Float64("pnl_pct", pnlPct).
			Msg("Position closed")
	}
}

func (c *Controller) markProcessed(ctx context.Context, p *fvg.GapPattern) {
	if c.deps.Cache != nil {
		c.deps.Cache.MarkPattern(ctx, p.ID)
	}
}

func (c *Controller) recordDecision(p *fvg.GapPattern, res ProcessResult) {
	c.logger.Debug().Str("pattern", p.ID).Str("decision", string(res.Decision)).
		Str("reason", res.Reason).Msg("Pattern processed")
}

// healthCheck reads account equity and enforces the drawdown ceiling.
func (c *Controller) healthCheck(ctx context.Context) {
	if c.deps.Account == nil {
		return
	}
	acct, err := c.deps.Account.GetAccount(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Health check account read failed")
		if c.deps.Bus != nil {
			c.deps.Bus.PublishError("health", "account read failed", err)
		}
		return
	}

	c.mu.Lock()
	c.lastEquity = acct.Equity
	if acct.Equity > c.peakEquity {
		c.peakEquity = acct.Equity
	}
	peak := c.peakEquity
	c.mu.Unlock()

	if peak <= 0 || c.cfg.DrawdownCeilingPct <= 0 {
		return
	}
	drawdown := (peak - acct.Equity) / peak * 100
	if drawdown >= c.cfg.DrawdownCeilingPct && c.State() == StateActiveTrading {
		c.EmergencyStop(fmt.Sprintf("drawdown %.1f%% breached ceiling %.1f%%", drawdown, c.cfg.DrawdownCeilingPct))
	}
}

func (c *Controller) primaryTimeframe() market.Timeframe {
	if len(c.cfg.Timeframes) > 0 {
		return c.cfg.Timeframes[0]
	}
	return market.M15
}

// DashboardSnapshot aggregates component state for the API layer.
func (c *Controller) DashboardSnapshot() map[string]interface{} {
	c.mu.Lock()
	snap := map[string]interface{}{
		"state":       string(c.state),
		"peak_equity": c.peakEquity,
		"last_equity": c.lastEquity,
		"processed":   c.processed,
		"approved":    c.approved,
		"open_trades": len(c.openTrades),
		"uptime_sec":  int64(time.Since(c.startedAt).Seconds()),
		"dry_run":     c.cfg.DryRun,
		"symbols":     c.cfg.Symbols,
	}
	c.mu.Unlock()

	snap["sessions"] = c.deps.Sessions.Snapshot()
	snap["risk"] = c.deps.Gate.Snapshot()
	snap["signals"] = c.deps.Generator.Snapshot()
	if c.deps.Cache != nil {
		ctx := context.Background()
		snap["cache"] = c.deps.Cache.Stats()
		snap["counters"] = map[string]interface{}{
			"signals_generated": c.deps.Cache.Counter(ctx, "signals_generated"),
			"trades_executed":   c.deps.Cache.Counter(ctx, "trades_executed"),
		}
	}
	return snap
}
