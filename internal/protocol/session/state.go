package session

// State is one node of the fetch state machine.
type State int

const (
	StateIdle State = iota
	StateBulkRequesting
	StateBulkStreaming
	StateGapCheck
	StateResendRequesting
	StateResendStreaming
	StateComplete
	StateFinalizing
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateBulkRequesting:   "bulk_requesting",
	StateBulkStreaming:    "bulk_streaming",
	StateGapCheck:         "gap_check",
	StateResendRequesting: "resend_requesting",
	StateResendStreaming:  "resend_streaming",
	StateComplete:         "complete",
	StateFinalizing:       "finalizing",
	StateDone:             "done",
	StateAborted:          "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Phase labels the connection a frame arrived on.
type Phase string

const (
	PhaseBulk   Phase = "bulk"
	PhaseResend Phase = "resend"
)
