package serializers

// Phase names the stage of the pipeline an error was raised in.
type Phase int8

const (
	PhaseUnknown Phase = iota
	PhaseConvert
	PhaseRevert
	PhaseRender
	PhaseParse
)

func (p Phase) String() string {
	phases := map[Phase]string{
		PhaseUnknown: "unknown",
		PhaseConvert: "convert",
		PhaseRevert:  "revert",
		PhaseRender:  "render",
		PhaseParse:   "parse",
	}

	if str, ok := phases[p]; ok {
		return str
	}
	return "unknown"
}
