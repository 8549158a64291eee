package rumor

// Phase is the circulation phase of a rumor.
type Phase string

const (
	// PhaseHot rumors are pushed to peers and offered on pull.
	PhaseHot Phase = "hot"
	// PhaseCold rumors are only offered on pull.
	PhaseCold Phase = "cold"
	// PhaseRetired rumors have passed the cold phase.
	PhaseRetired Phase = "retired"
	// PhaseTerminated rumors have exceeded the terminate threshold, so no
	// longer circulate regardless of their push counter.
	PhaseTerminated Phase = "terminated"
)

// Rumor is a snapshot of a stored rumor.
type Rumor struct {
	Digest   Digest        `json:"digest"`
	Counters RoundCounters `json:"counters"`
	Payload  []byte        `json:"payload"`
}

// Phase returns the phase of the rumor given the thresholds.
func (r Rumor) Phase(t Thresholds) Phase {
	switch {
	case r.Counters.Age > t.Terminate:
		return PhaseTerminated
	case r.Counters.Push <= t.Hot:
		return PhaseHot
	case r.Counters.Push <= t.Cold:
		return PhaseCold
	default:
		return PhaseRetired
	}
}
