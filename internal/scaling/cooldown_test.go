package scaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewCooldownTracker_StartsAtLoopStart(t *testing.T) {
	tracker := NewCooldownTracker(epoch)
	state := tracker.State()
	assert.Equal(t, epoch, state.LastScaleUpAt)
	assert.Equal(t, epoch, state.LastScaleDownAt)
}

func TestCooldownTracker_Record(t *testing.T) {
	tracker := NewCooldownTracker(epoch)

	tracker.Record(Decision{Action: ScaleUp, Replicas: 4}, epoch.Add(time.Minute))
	assert.Equal(t, epoch.Add(time.Minute), tracker.State().LastScaleUpAt)
	assert.Equal(t, epoch, tracker.State().LastScaleDownAt)

	tracker.Record(Decision{Action: ScaleDown, Replicas: 2}, epoch.Add(2*time.Minute))
	assert.Equal(t, epoch.Add(time.Minute), tracker.State().LastScaleUpAt)
	assert.Equal(t, epoch.Add(2*time.Minute), tracker.State().LastScaleDownAt)

	tracker.Record(Decision{Action: NoOp}, epoch.Add(3*time.Minute))
	assert.Equal(t, epoch.Add(time.Minute), tracker.State().LastScaleUpAt)
	assert.Equal(t, epoch.Add(2*time.Minute), tracker.State().LastScaleDownAt)
}

func TestCooldownTracker_StateIsACopy(t *testing.T) {
	tracker := NewCooldownTracker(epoch)
	state := tracker.State()
	state.LastScaleUpAt = epoch.Add(time.Hour)
	assert.Equal(t, epoch, tracker.State().LastScaleUpAt)
}
