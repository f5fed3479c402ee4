package events

import (
	"sync"
	"time"
)

// EventType labels the events the pipeline emits.
type EventType string

const (
	EventPatternDetected EventType = "PATTERN_DETECTED"
	EventPatternFilled   EventType = "PATTERN_FILLED"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventSignalFiltered  EventType = "SIGNAL_FILTERED"
	EventTradeExecuted   EventType = "TRADE_EXECUTED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventTradeRejected   EventType = "TRADE_REJECTED"
	EventCycleReset      EventType = "CYCLE_RESET"
	EventEmergencyStop   EventType = "EMERGENCY_STOP"
	EventHealthAlert     EventType = "HEALTH_ALERT"
	EventStateChanged    EventType = "STATE_CHANGED"
	EventError           EventType = "ERROR"
)

// Event is one pipeline occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles events.
type Subscriber func(Event)

// Bus fans events out to subscribers. Delivery is asynchronous so a
// slow subscriber cannot stall the trading loop.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

// SubscribeAll registers a subscriber for every event.
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish delivers the event to matching subscribers, each on its own
// goroutine.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishPatternDetected announces a fresh gap pattern.
func (b *Bus) PublishPatternDetected(patternID, symbol, timeframe, direction string, size float64) {
	b.Publish(Event{
		Type: EventPatternDetected,
		Data: map[string]interface{}{
			"pattern_id": patternID,
			"symbol":     symbol,
			"timeframe":  timeframe,
			"direction":  direction,
			"size":       size,
		},
	})
}

// PublishSignalGenerated announces an approved trade signal.
func (b *Bus) PublishSignalGenerated(signalID, patternID, symbol, direction string, entry, stop float64) {
	b.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"signal_id":  signalID,
			"pattern_id": patternID,
			"symbol":     symbol,
			"direction":  direction,
			"entry":      entry,
			"stop_loss":  stop,
		},
	})
}

// PublishSignalFiltered announces a pattern that failed a gate.
func (b *Bus) PublishSignalFiltered(patternID, symbol, reason string) {
	b.Publish(Event{
		Type: EventSignalFiltered,
		Data: map[string]interface{}{
			"pattern_id": patternID,
			"symbol":     symbol,
			"reason":     reason,
		},
	})
}

// PublishTradeExecuted announces a filled order.
func (b *Bus) PublishTradeExecuted(signalID, symbol string, ticket int64, lots, fillPrice float64) {
	b.Publish(Event{
		Type: EventTradeExecuted,
		Data: map[string]interface{}{
			"signal_id":  signalID,
			"symbol":     symbol,
			"ticket":     ticket,
			"lots":       lots,
			"fill_price": fillPrice,
		},
	})
}

// PublishTradeClosed announces a position settled at the broker.
func (b *Bus) PublishTradeClosed(signalID, symbol string, ticket int64, pnlPct float64) {
	b.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"signal_id": signalID,
			"symbol":    symbol,
			"ticket":    ticket,
			"pnl_pct":   pnlPct,
		},
	})
}

// PublishTradeRejected announces a trade that was vetoed or failed.
func (b *Bus) PublishTradeRejected(signalID, symbol, reason string) {
	b.Publish(Event{
		Type: EventTradeRejected,
		Data: map[string]interface{}{
			"signal_id": signalID,
			"symbol":    symbol,
			"reason":    reason,
		},
	})
}

// PublishEmergencyStop announces a hard halt.
func (b *Bus) PublishEmergencyStop(reason string) {
	b.Publish(Event{
		Type: EventEmergencyStop,
		Data: map[string]interface{}{"reason": reason},
	})
}

// PublishStateChanged announces a controller transition.
func (b *Bus) PublishStateChanged(from, to, reason string) {
	b.Publish(Event{
		Type: EventStateChanged,
		Data: map[string]interface{}{
			"from":   from,
			"to":     to,
			"reason": reason,
		},
	})
}

// PublishError announces a component failure.
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}
