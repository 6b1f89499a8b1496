package protocol

import "fmt"

type Action string

const (
	ActionMove   Action = "MOVE"
	ActionAttack Action = "ATTACK"
	ActionStop   Action = "STOP"
)

// Mode selects how the engine steers toward a MOVE/ATTACK target.
// The zero value means "unset" and is treated as DIRECT.
type Mode string

const (
	ModeDirect Mode = "DIRECT"
	ModeFlow   Mode = "FLOW"
)

// InputCommand is immutable once issued.
type InputCommand struct {
	EntityID uint32  `json:"entity_id"`
	Action   Action  `json:"action"`
	TargetX  float64 `json:"target_x"`
	TargetY  float64 `json:"target_y"`
	Mode     Mode    `json:"mode,omitempty"`
}

func (c InputCommand) Validate() error {
	switch c.Action {
	case ActionMove, ActionAttack, ActionStop:
	default:
		return fmt.Errorf("unknown action %q", c.Action)
	}
	switch c.Mode {
	case "", ModeDirect, ModeFlow:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	return nil
}

// TickBundle is the complete authoritative input for exactly one tick.
// An empty command list is a valid bundle: the tick happened and nothing was issued.
type TickBundle struct {
	Tick     uint64         `json:"tick"`
	Commands []InputCommand `json:"commands"`
}

// Clone returns a bundle that shares no backing array with b.
func (b TickBundle) Clone() TickBundle {
	out := TickBundle{Tick: b.Tick, Commands: make([]InputCommand, len(b.Commands))}
	copy(out.Commands, b.Commands)
	return out
}
