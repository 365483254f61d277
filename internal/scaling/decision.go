package scaling

import (
	"fmt"
	"time"

	"github.com/phildougherty/queuescale/internal/config"
)

// Action is the kind of a scaling decision
type Action int

const (
	NoOp Action = iota
	ScaleUp
	ScaleDown
)

func (a Action) String() string {
	switch a {
	case ScaleUp:
		return "scale-up"
	case ScaleDown:
		return "scale-down"
	default:
		return "no-op"
	}
}

// MarshalText encodes the action by name
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Snapshot is one observation of the queue and the workload
type Snapshot struct {
	MessageCount    uint64    `json:"messageCount"`
	CurrentReplicas int32     `json:"currentReplicas"`
	ObservedAt      time.Time `json:"observedAt"`
}

// Decision is the outcome of Evaluate. Replicas is only meaningful when
// Action is ScaleUp or ScaleDown and then lies within [MinPods, MaxPods].
type Decision struct {
	Action   Action `json:"action"`
	Replicas int32  `json:"replicas,omitempty"`
	Reason   string `json:"reason"`
}

func noOp(reason string) Decision {
	return Decision{Action: NoOp, Reason: reason}
}

func (d Decision) String() string {
	if d.Action == NoOp {
		return fmt.Sprintf("no-op (%s)", d.Reason)
	}
	return fmt.Sprintf("%s to %d (%s)", d.Action, d.Replicas, d.Reason)
}

// Evaluate turns a snapshot into a scaling decision. It is pure: the caller
// supplies the clock reading and the cooldown state.
//
// Both the scale-up and the scale-down branch are evaluated. With validated
// options their bands are disjoint so at most one can produce an action;
// otherwise scale-up takes precedence.
func Evaluate(snap Snapshot, cooldown CooldownState, opts config.Options, now time.Time) Decision {
	// Zero replicas is an intentional pause and overrides MinPods.
	if snap.CurrentReplicas <= 0 {
		return noOp("workload scaled to zero")
	}

	average := snap.MessageCount / uint64(snap.CurrentReplicas)

	up := evaluateUp(snap, average, cooldown, opts, now)
	down := evaluateDown(snap, average, cooldown, opts, now)

	switch {
	case up.Action != NoOp:
		return up
	case down.Action != NoOp:
		return down
	case up.Reason != "":
		return up
	case down.Reason != "":
		return down
	}
	return noOp(fmt.Sprintf("average %d messages per replica within band", average))
}

func evaluateUp(snap Snapshot, average uint64, cooldown CooldownState, opts config.Options, now time.Time) Decision {
	if average < opts.ScaleUpMessages {
		return Decision{}
	}
	if now.Sub(cooldown.LastScaleUpAt) <= opts.ScaleUpCooldown {
		return noOp("waiting for scale up cooldown")
	}

	target := clamp(ceilDiv(snap.MessageCount, opts.ScaleUpMessages), opts.MinPods, opts.MaxPods)
	if target == snap.CurrentReplicas {
		return noOp("max pods reached")
	}
	return Decision{
		Action:   ScaleUp,
		Replicas: target,
		Reason:   fmt.Sprintf("average %d messages per replica >= %d", average, opts.ScaleUpMessages),
	}
}

func evaluateDown(snap Snapshot, average uint64, cooldown CooldownState, opts config.Options, now time.Time) Decision {
	if average > opts.ScaleDownMessages {
		return Decision{}
	}
	if now.Sub(cooldown.LastScaleDownAt) <= opts.ScaleDownCooldown {
		return noOp("waiting for scale down cooldown")
	}

	target := clamp(ceilDiv(snap.MessageCount, opts.ScaleDownMessages), opts.MinPods, opts.MaxPods)
	if target == snap.CurrentReplicas {
		return noOp("min pods reached")
	}
	return Decision{
		Action:   ScaleDown,
		Replicas: target,
		Reason:   fmt.Sprintf("average %d messages per replica <= %d", average, opts.ScaleDownMessages),
	}
}

// ceilDiv returns ceil(n/d). d must be non-zero.
func ceilDiv(n, d uint64) uint64 {
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}

func clamp(n uint64, min, max int32) int32 {
	if n > uint64(max) {
		return max
	}
	if int64(n) < int64(min) {
		return min
	}
	return int32(n)
}
