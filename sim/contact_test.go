package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewContact_Defaults(t *testing.T) {
	c := NewContact(7, 2, 1.5)

	assert.True(t, math.IsInf(c.PatienceTime, 1))
	assert.Zero(t, c.Owner())
	assert.False(t, c.Exited())
	assert.Zero(t, c.WaitingTime(10))
	_, queued := c.FirstQueueTime()
	assert.False(t, queued)
	assert.Equal(t, "Contact: (ID: 7, Type: 2, ArrivalTime: 1.5000)", c.String())
}

func TestTrunkGroup_TakeAndRelease(t *testing.T) {
	tg := NewTrunkGroup("lines", 2)
	a, b, c := NewContact(1, 0, 0), NewContact(2, 0, 0), NewContact(3, 0, 0)

	assert.True(t, tg.Take(a))
	assert.True(t, tg.Take(a), "taking twice is a no-op")
	assert.True(t, tg.Take(b))
	assert.False(t, tg.Take(c))
	assert.Equal(t, 2, tg.InUse())
	assert.True(t, a.HoldsLine())
	assert.False(t, c.HoldsLine())

	tg.Release(a)
	tg.Release(a)
	tg.Release(c)
	assert.Equal(t, 1, tg.InUse())
	assert.True(t, tg.Take(c))
	assert.Equal(t, 2, tg.Capacity())
}

func TestTrunkGroup_ZeroCapacityRefusesAll(t *testing.T) {
	tg := NewTrunkGroup("none", 0)

	assert.False(t, tg.Take(NewContact(1, 0, 0)))
	assert.Panics(t, func() { NewTrunkGroup("bad", -1) })
}
