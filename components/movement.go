package components

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MovementAction is what the move target asks the entity to do.
type MovementAction uint8

const (
	ActionStand MovementAction = iota
	ActionMove
	ActionAnimate
)

func (a MovementAction) String() string {
	switch a {
	case ActionStand:
		return "stand"
	case ActionMove:
		return "move"
	case ActionAnimate:
		return "animate"
	}
	return "unknown"
}

// MoveTarget is the navigation and orientation goal consumed by steering.
type MoveTarget struct {
	Center          r3.Vec
	Forward         r3.Vec
	DesiredSpeed    float64
	DistanceToGoal  float64
	SlackRadius     float64
	Action          MovementAction
	PreviousAction  MovementAction
	IntentAtGoal    MovementAction
	ActionID        uint16
	ActionStartTime float64
}

// CreateNewAction switches to a new action and bumps the action id.
func (m *MoveTarget) CreateNewAction(action MovementAction, now float64) {
	m.PreviousAction = m.Action
	m.Action = action
	m.ActionID++
	m.ActionStartTime = now
}

// StashedMoveTarget is a shadow copy of MoveTarget saved while a look-at or
// track behavior overrides steering.
type StashedMoveTarget struct {
	MoveTarget
}

// Ghost is the simulated settle position of a standing agent.
type Ghost struct {
	Location     r3.Vec
	Velocity     r3.Vec
	LastActionID uint16
	Valid        bool
}

// IsValid reports whether the ghost belongs to the given move action.
func (g *Ghost) IsValid(actionID uint16) bool {
	return g.Valid && g.LastActionID == actionID
}

// YawFromDirection returns the heading of a direction in the XY plane.
func YawFromDirection(dir r3.Vec) float64 {
	return math.Atan2(dir.Y, dir.X)
}
