package domain

import "strings"

// RunState tracks where a probe run is in its lifecycle. A run walks
// forward through the states below; the only backward edge is
// verifying -> running, taken when a step's database predicate has been
// satisfied and the next step begins.
type RunState string

const (
	RunStateInitializing RunState = "initializing"
	RunStateRunning      RunState = "running"
	RunStateVerifying    RunState = "verifying"
	RunStateCleaningUp   RunState = "cleaning_up"
	RunStateReporting    RunState = "reporting"
	RunStateDone         RunState = "done"
)

var runStateTransitions = map[RunState][]RunState{
	RunStateInitializing: {RunStateRunning, RunStateCleaningUp},
	RunStateRunning:      {RunStateVerifying, RunStateCleaningUp},
	RunStateVerifying:    {RunStateRunning, RunStateCleaningUp},
	RunStateCleaningUp:   {RunStateReporting},
	RunStateReporting:    {RunStateDone},
	RunStateDone:         nil,
}

func NormalizeRunState(v string) (RunState, bool) {
	switch RunState(strings.ToLower(strings.TrimSpace(v))) {
	case RunStateInitializing:
		return RunStateInitializing, true
	case RunStateRunning:
		return RunStateRunning, true
	case RunStateVerifying:
		return RunStateVerifying, true
	case RunStateCleaningUp:
		return RunStateCleaningUp, true
	case RunStateReporting:
		return RunStateReporting, true
	case RunStateDone:
		return RunStateDone, true
	default:
		return "", false
	}
}

func CanTransitionRunState(from, to RunState) bool {
	if from == "" || to == "" {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range runStateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
