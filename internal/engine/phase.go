package engine

// Phase tracks how far the recreate protocol got for one target. Terminal
// phases are PhaseSkipped, PhaseVerified, and PhaseFailed; everything
// destructive happens strictly after PhaseCompared, so a target that never
// reaches PhaseStopped is guaranteed untouched.
type Phase uint8

const (
	PhaseInspected Phase = iota
	PhasePulled
	PhaseCompared
	PhaseSkipped
	PhaseStopped
	PhaseRemoved
	PhaseStarted
	PhaseVerified
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInspected:
		return "inspected"
	case PhasePulled:
		return "pulled"
	case PhaseCompared:
		return "compared"
	case PhaseSkipped:
		return "skipped"
	case PhaseStopped:
		return "stopped"
	case PhaseRemoved:
		return "removed"
	case PhaseStarted:
		return "started"
	case PhaseVerified:
		return "verified"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the protocol halts in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseSkipped || p == PhaseVerified || p == PhaseFailed
}
