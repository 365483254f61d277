package scaling

import "time"

// CooldownState holds the times of the last applied scale-up and scale-down
type CooldownState struct {
	LastScaleUpAt   time.Time `json:"lastScaleUpAt"`
	LastScaleDownAt time.Time `json:"lastScaleDownAt"`
}

// CooldownTracker owns the CooldownState of one control loop. It is not safe
// for concurrent use; the loop goroutine is its only user.
type CooldownTracker struct {
	state CooldownState
}

// NewCooldownTracker starts both cooldowns at start, so nothing scales until
// a full cooldown period has passed.
func NewCooldownTracker(start time.Time) *CooldownTracker {
	return &CooldownTracker{
		state: CooldownState{LastScaleUpAt: start, LastScaleDownAt: start},
	}
}

// RecordScaleUp is called after a scale-up was applied
func (c *CooldownTracker) RecordScaleUp(at time.Time) {
	c.state.LastScaleUpAt = at
}

// RecordScaleDown is called after a scale-down was applied
func (c *CooldownTracker) RecordScaleDown(at time.Time) {
	c.state.LastScaleDownAt = at
}

// Record updates the timestamp matching the decision's direction
func (c *CooldownTracker) Record(d Decision, at time.Time) {
	switch d.Action {
	case ScaleUp:
		c.RecordScaleUp(at)
	case ScaleDown:
		c.RecordScaleDown(at)
	}
}

// State returns a copy of the tracked timestamps
func (c *CooldownTracker) State() CooldownState {
	return c.state
}
