package controller

import "fmt"

// State is the controller's operating mode. Every state change goes
// through transition so illegal jumps are impossible.
type State string

const (
	StateInitializing  State = "INITIALIZING"
	StateReady         State = "READY"
	StateActiveTrading State = "ACTIVE_TRADING"
	StatePaused        State = "PAUSED"
	StateEmergencyStop State = "EMERGENCY_STOP"
	StateMaintenance   State = "MAINTENANCE"
	StateShutdown      State = "SHUTDOWN"
)

// legalTransitions maps each state to the states it may enter.
// EMERGENCY_STOP is reachable from every non-terminal state and only
// leaves through an operator reset to READY or a shutdown.
var legalTransitions = map[State][]State{
	StateInitializing:  {StateReady, StateEmergencyStop, StateShutdown},
	StateReady:         {StateActiveTrading, StateMaintenance, StateEmergencyStop, StateShutdown},
	StateActiveTrading: {StatePaused, StateEmergencyStop, StateMaintenance, StateShutdown},
	StatePaused:        {StateActiveTrading, StateEmergencyStop, StateMaintenance, StateShutdown},
	StateEmergencyStop: {StateReady, StateShutdown},
	StateMaintenance:   {StateReady, StateEmergencyStop, StateShutdown},
	StateShutdown:      {},
}

// canTransition reports whether from may enter to.
func canTransition(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrIllegalTransition reports a rejected state change.
type ErrIllegalTransition struct {
	From, To State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}
