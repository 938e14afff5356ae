// README: Kijiwe: a named staging area with an ordered driver queue.
package kijiwe

import "kijiwe/internal/types"

// Kijiwe is a physical waiting spot with a geographic position and an
// ordered queue of drivers waiting for dispatch. Queue order is the order
// the dispatcher offers rides in.
type Kijiwe struct {
	ID       types.ID
	Name     string
	Position types.Point
	Queue    []types.ID
	AdminID  types.ID
}

// HasPosition reports whether the kijiwe carries a usable coordinate.
// Areas without one are invisible to the dispatcher.
func (k Kijiwe) HasPosition() bool {
	return !k.Position.IsZero()
}
