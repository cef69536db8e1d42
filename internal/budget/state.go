package budget

import (
	"github.com/qmuntal/stateless"
)

// FSM states, one per crossed-threshold level.
type FSMState = stateless.State

var (
	StateHealthy   FSMState = "Healthy"
	StateWarning50 FSMState = "Warning50"
	StateWarning75 FSMState = "Warning75"
	StateWarning90 FSMState = "Warning90"
	StateExhausted FSMState = "Exhausted"
)

// FSM triggers. Crossings only move the machine forward within a period;
// TriggerReset is the only way back to Healthy.
type FSMTrigger = stateless.Trigger

var (
	TriggerCross50 FSMTrigger = "Cross50"
	TriggerCross75 FSMTrigger = "Cross75"
	TriggerCross90 FSMTrigger = "Cross90"
	TriggerExhaust FSMTrigger = "Exhaust"
	TriggerReset   FSMTrigger = "Reset"
)

// Threshold identifies a budget warning level as a percentage of the limit.
// ThresholdExhausted means spend reached the limit itself.
type Threshold int

const (
	ThresholdNone      Threshold = 0
	Threshold50        Threshold = 50
	Threshold75        Threshold = 75
	Threshold90        Threshold = 90
	ThresholdExhausted Threshold = 100
)

func (t Threshold) String() string {
	switch t {
	case Threshold50:
		return "50%"
	case Threshold75:
		return "75%"
	case Threshold90:
		return "90%"
	case ThresholdExhausted:
		return "exhausted"
	default:
		return "none"
	}
}

func stateFor(t Threshold) FSMState {
	switch t {
	case Threshold50:
		return StateWarning50
	case Threshold75:
		return StateWarning75
	case Threshold90:
		return StateWarning90
	case ThresholdExhausted:
		return StateExhausted
	default:
		return StateHealthy
	}
}

func triggerFor(t Threshold) FSMTrigger {
	switch t {
	case Threshold50:
		return TriggerCross50
	case Threshold75:
		return TriggerCross75
	case Threshold90:
		return TriggerCross90
	default:
		return TriggerExhaust
	}
}

// thresholdFor maps cumulative spend to the highest threshold at or below it.
func thresholdFor(spent, limit float64) Threshold {
	if limit <= 0 {
		return ThresholdNone
	}
	switch pct := spent / limit * 100; {
	case spent >= limit:
		return ThresholdExhausted
	case pct >= 90:
		return Threshold90
	case pct >= 75:
		return Threshold75
	case pct >= 50:
		return Threshold50
	default:
		return ThresholdNone
	}
}

// newFSM builds the threshold machine positioned at initial. Each state
// permits only forward crossings plus the administrator reset.
func newFSM(initial FSMState) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(initial)

	fsm.Configure(StateHealthy).
		PermitReentry(TriggerReset).
		Permit(TriggerCross50, StateWarning50).
		Permit(TriggerCross75, StateWarning75).
		Permit(TriggerCross90, StateWarning90).
		Permit(TriggerExhaust, StateExhausted)

	fsm.Configure(StateWarning50).
		Permit(TriggerCross75, StateWarning75).
		Permit(TriggerCross90, StateWarning90).
		Permit(TriggerExhaust, StateExhausted).
		Permit(TriggerReset, StateHealthy)

	fsm.Configure(StateWarning75).
		Permit(TriggerCross90, StateWarning90).
		Permit(TriggerExhaust, StateExhausted).
		Permit(TriggerReset, StateHealthy)

	fsm.Configure(StateWarning90).
		Permit(TriggerExhaust, StateExhausted).
		Permit(TriggerReset, StateHealthy)

	fsm.Configure(StateExhausted).
		Permit(TriggerReset, StateHealthy)

	return fsm
}
