package risk

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Level expresses how much exposure a trade decision may take. Higher
// ordinal means more conservative; when two components disagree, the
// more conservative level wins.
type Level int

const (
	LevelNormal Level = iota
	LevelReduced
	LevelMinimal
	LevelBlocked
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelReduced:
		return "REDUCED"
	case LevelMinimal:
		return "MINIMAL"
	default:
		return "BLOCKED"
	}
}

// MoreConservative returns the stricter of two levels.
func MoreConservative(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// SizeMultiplier converts an exposure level into a position-size
// scale. Blocked trades never reach the sizer, so 0 there is a guard.
func (l Level) SizeMultiplier() float64 {
	switch l {
	case LevelNormal:
		return 1.0
	case LevelReduced:
		return 0.75
	case LevelMinimal:
		return 0.5
	default:
		return 0
	}
}

// Config bounds concurrent exposure.
type Config struct {
	MaxOpenPositions   int     `json:"max_open_positions"`
	MaxPerSymbol       int     `json:"max_per_symbol"`
	MinSignalStrength  float64 `json:"min_signal_strength"`
	ReducedAtPositions int     `json:"reduced_at_positions"`
}

// DefaultConfig returns conservative exposure bounds.
func DefaultConfig() Config {
	return Config{
		MaxOpenPositions:   3,
		MaxPerSymbol:       1,
		MinSignalStrength:  0.3,
		ReducedAtPositions: 2,
	}
}

// Gate is the final pre-execution risk check. It tracks open positions
// and vetoes trades that exceed exposure bounds. All methods are safe
// for concurrent use.
type Gate struct {
	mu        sync.Mutex
	cfg       Config
	enabled   bool
	open      map[string]int // symbol -> open position count
	totalOpen int
	logger    zerolog.Logger
}

// NewGate builds an enabled Gate.
func NewGate(cfg Config, logger zerolog.Logger) *Gate {
	return &Gate{
		cfg:     cfg,
		enabled: true,
		open:    make(map[string]int),
		logger:  logger.With().Str("component", "risk_gate").Logger(),
	}
}

// SetEnabled flips the master trading switch.
func (g *Gate) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
	g.logger.Info().Bool("enabled", enabled).Msg("Risk gate toggled")
}

// Check runs the veto chain for one candidate trade. Checks run in
// order and the first failure wins, so the returned reason names the
// binding constraint.
func (g *Gate) Check(symbol string, strength float64) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.enabled {
		return false, "trading disabled"
	}
	if g.totalOpen >= g.cfg.MaxOpenPositions {
		return false, fmt.Sprintf("max open positions reached (%d/%d)", g.totalOpen, g.cfg.MaxOpenPositions)
	}
	if g.open[symbol] >= g.cfg.MaxPerSymbol {
		return false, fmt.Sprintf("max positions for %s reached (%d/%d)", symbol, g.open[symbol], g.cfg.MaxPerSymbol)
	}
	if strength < g.cfg.MinSignalStrength {
		return false, fmt.Sprintf("signal strength %.2f below minimum %.2f", strength, g.cfg.MinSignalStrength)
	}
	return true, ""
}

// LevelFor recommends an exposure level for a passing trade based on
// current load and signal strength.
func (g *Gate) LevelFor(strength float64) Level {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.enabled {
		return LevelBlocked
	}
	level := LevelNormal
	if g.totalOpen >= g.cfg.ReducedAtPositions {
		level = LevelReduced
	}
	if strength < 0.5 {
		level = MoreConservative(level, LevelReduced)
	}
	if strength < g.cfg.MinSignalStrength {
		level = LevelBlocked
	}
	return level
}

// RegisterOpen records an opened position.
func (g *Gate) RegisterOpen(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open[symbol]++
	g.totalOpen++
	g.logger.Info().Str("symbol", symbol).Int("total_open", g.totalOpen).Msg("Position registered")
}

// RegisterClose records a closed position. Closing more than was
// opened is a bookkeeping bug and only logs.
func (g *Gate) RegisterClose(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open[symbol] <= 0 {
		g.logger.Warn().Str("symbol", symbol).Msg("Close registered with no open position")
		return
	}
	g.open[symbol]--
	g.totalOpen--
	if g.open[symbol] == 0 {
		delete(g.open, symbol)
	}
}

// OpenPositions returns the total open position count.
func (g *Gate) OpenPositions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalOpen
}

// Snapshot returns gate state for dashboards.
func (g *Gate) Snapshot() map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	perSymbol := make(map[string]int, len(g.open))
	for s, n := range g.open {
		perSymbol[s] = n
	}
	return map[string]interface{}{
		"enabled":        g.enabled,
		"total_open":     g.totalOpen,
		"per_symbol":     perSymbol,
		"max_open":       g.cfg.MaxOpenPositions,
		"max_per_symbol": g.cfg.MaxPerSymbol,
	}
}
