package session

import "fmt"

// State is the lifecycle position of a Driver.
type State int

const (
	Idle State = iota
	Connecting
	StreamingDimensions
	Streaming
	Stopping
	Stopped
	Failed
)

var stateNames = [...]string{
	Idle:                "idle",
	Connecting:          "connecting",
	StreamingDimensions: "streaming-dimensions",
	Streaming:           "streaming",
	Stopping:            "stopping",
	Stopped:             "stopped",
	Failed:              "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Stopped || s == Failed
}
