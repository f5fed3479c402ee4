package execution

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockExecutor records orders in memory for dry runs and tests. Fail
// can be set to make the next N attempts error, which exercises the
// retry path. Placed orders become open positions until closed.
type MockExecutor struct {
	mu         sync.Mutex
	nextTicket int64
	Orders     []OrderRequest
	Closed     []int64
	open       map[int64]Position
	history    map[int64]ClosedPosition
	Fail       int
	Account    AccountState
}

// NewMockExecutor returns a mock with a funded demo account.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		nextTicket: 1000,
		open:       make(map[int64]Position),
		history:    make(map[int64]ClosedPosition),
		Account: AccountState{
			Equity:     10000,
			Balance:    10000,
			FreeMargin: 10000,
			Currency:   "USD",
		},
	}
}

// PlaceOrder records the order and returns a synthetic ticket.
func (m *MockExecutor) PlaceOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail > 0 {
		m.Fail--
		return OrderResult{}, errTransient
	}
	m.nextTicket++
	m.Orders = append(m.Orders, req)
	m.open[m.nextTicket] = Position{
		Ticket:    m.nextTicket,
		Symbol:    req.Symbol,
		Lots:      req.Lots,
		OpenPrice: req.Entry,
	}
	return OrderResult{
		Ticket:     m.nextTicket,
		FillPrice:  req.Entry,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// ClosePosition records the close at zero profit.
func (m *MockExecutor) ClosePosition(_ context.Context, ticket int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail > 0 {
		m.Fail--
		return errTransient
	}
	m.Closed = append(m.Closed, ticket)
	m.settle(ticket, 0)
	return nil
}

// SettlePosition closes an open position with the given realized
// profit, simulating a stop or target hit at the terminal.
func (m *MockExecutor) SettlePosition(ticket int64, profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle(ticket, profit)
}

// settle moves a ticket from open to history. Caller holds the lock.
func (m *MockExecutor) settle(ticket int64, profit float64) {
	pos, ok := m.open[ticket]
	if !ok {
		return
	}
	delete(m.open, ticket)
	m.history[ticket] = ClosedPosition{
		Ticket:     ticket,
		Profit:     profit,
		ClosePrice: pos.OpenPrice,
		ClosedAt:   time.Now().UTC(),
	}
}

// GetPositions lists the simulated open positions.
func (m *MockExecutor) GetPositions(_ context.Context) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, p)
	}
	return out, nil
}

// GetClosedPosition resolves a settled ticket.
func (m *MockExecutor) GetClosedPosition(_ context.Context, ticket int64) (ClosedPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed, ok := m.history[ticket]
	if !ok {
		return ClosedPosition{}, fmt.Errorf("ticket %d not in history", ticket)
	}
	return closed, nil
}

// GetAccount returns the configured account snapshot.
func (m *MockExecutor) GetAccount(_ context.Context) (AccountState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Account, nil
}

// OrderCount returns how many orders were accepted.
func (m *MockExecutor) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

var errTransient = &transientError{}

type transientError struct{}

func (*transientError) Error() string { return "simulated transient failure" }

var _ Executor = (*MockExecutor)(nil)
var _ AccountProvider = (*MockExecutor)(nil)
var _ PositionProvider = (*MockExecutor)(nil)
