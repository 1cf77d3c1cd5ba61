package pipeline

// State is a stage of the run state machine. Done and Aborted are terminal.
type State int

const (
	Init State = iota
	LoadingConfig
	ListingTargets
	FetchingExtracting
	Normalizing
	EvaluatingGates
	Diffing
	Writing
	Done
	Aborted
)

var stateNames = [...]string{
	Init:               "Init",
	LoadingConfig:      "LoadingConfig",
	ListingTargets:     "ListingTargets",
	FetchingExtracting: "FetchingExtracting",
	Normalizing:        "Normalizing",
	EvaluatingGates:    "EvaluatingGates",
	Diffing:            "Diffing",
	Writing:            "Writing",
	Done:               "Done",
	Aborted:            "Aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Done || s == Aborted
}
