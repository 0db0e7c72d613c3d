package session

import "fmt"

// State is the session kernel's top-level state machine (spec section 2
// "session lifecycle", section 4.8).
type State uint8

const (
	Stopped State = iota
	Starting
	Started
	Stopping
)

var stateNames = [...]string{"Stopped", "Starting", "Started", "Stopping"}

// String returns the human-readable state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}
