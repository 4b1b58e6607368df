package progress

import "github.com/untoldecay/ccpm/internal/types"

// PRDSummary rolls epic state up to a PRD.
type PRDSummary struct {
	Epics   int             `json:"epics"`
	Closed  int             `json:"closed"`
	Active  int             `json:"active"`
	Percent int             `json:"progress"`
	Status  types.PRDStatus `json:"status"`
}

// ComputePRD summarizes the live epics of one PRD. Percent averages epic
// progress (floored); the PRD is complete when every epic is closed and
// active when any epic has started.
func ComputePRD(epics []*types.Epic) PRDSummary {
	var s PRDSummary
	total := 0
	for _, e := range epics {
		s.Epics++
		total += e.Progress
		switch e.Status {
		case types.EpicClosed:
			s.Closed++
		case types.EpicActive:
			s.Active++
		}
	}
	if s.Epics > 0 {
		s.Percent = total / s.Epics
	}
	switch {
	case s.Epics > 0 && s.Closed == s.Epics:
		s.Status = types.PRDComplete
	case s.Active > 0 || s.Closed > 0:
		s.Status = types.PRDActive
	default:
		s.Status = types.PRDBacklog
	}
	return s
}
