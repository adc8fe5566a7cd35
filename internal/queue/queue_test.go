package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titglob/rtsv/internal/record"
)

func rec(cmd record.Kind, t uint32) *record.Record {
	return &record.Record{Cmd: cmd, Time: t, ID1: 1}
}

func TestInsertOrdersByTime(t *testing.T) {
	q := New(1000, false, false)

	require.Nil(t, q.Insert(rec(record.KindRun, 10)))
	require.Nil(t, q.Insert(rec(record.KindRun, 5)))
	require.Nil(t, q.Insert(rec(record.KindRun, 7)))

	assert.Equal(t, []uint32{5, 7, 10}, q.Times())
}

func TestInsertTimeTieKeepsInsertionOrder(t *testing.T) {
	q := New(1000, false, false)
	a := rec(record.KindRun, 5)
	b := rec(record.KindRun, 5)

	q.Insert(a)
	q.Insert(b)

	assert.Less(t, a.Seq(), b.Seq())
	assert.Equal(t, []uint32{5, 5}, q.Times())

	released := q.Drain()
	require.Len(t, released, 2)
	assert.Same(t, a, released[0])
	assert.Same(t, b, released[1])
}

// TestFlushHorizonReleasesOnlyEligibleRecords is scenario-adjacent to spec
// §8 testable property 3: a Record is dispatched only once the queue's
// span reaches the configured flush horizon.
func TestFlushHorizonReleasesOnlyEligibleRecords(t *testing.T) {
	q := New(10, false, false)

	assert.Nil(t, q.Insert(rec(record.KindRun, 0)))
	assert.Nil(t, q.Insert(rec(record.KindRun, 4)))
	assert.Nil(t, q.Insert(rec(record.KindRun, 9)))

	// Span is still 9 < horizon 10: nothing released yet.
	assert.Equal(t, 3, q.Len())

	released := q.Insert(rec(record.KindRun, 10))
	// Span is now 10, so every Record with time+10 <= 10 (i.e. time <= 0) releases.
	require.Len(t, released, 1)
	assert.EqualValues(t, 0, released[0].Time)
	assert.Equal(t, 3, q.Len())
}

func TestFlushReleasesInTimeOrder(t *testing.T) {
	q := New(5, false, false)
	q.Insert(rec(record.KindRun, 0))
	q.Insert(rec(record.KindRun, 1))
	q.Insert(rec(record.KindRun, 2))
	released := q.Insert(rec(record.KindRun, 7))

	require.Len(t, released, 3)
	assert.EqualValues(t, 0, released[0].Time)
	assert.EqualValues(t, 1, released[1].Time)
	assert.EqualValues(t, 2, released[2].Time)
}

func TestOutOfOrderInsertTriggersFlush(t *testing.T) {
	q := New(20, false, false)
	q.Insert(rec(record.KindRun, 10))
	q.Insert(rec(record.KindRun, 11))

	// A Record earlier than the current head is prepended and forces a
	// flush pass (spec §4.5 "time < head.time" case).
	released := q.Insert(rec(record.KindRun, 0))
	assert.Empty(t, released)
	assert.Equal(t, []uint32{0, 10, 11}, q.Times())
}

func TestDrainReleasesEverythingRegardlessOfHorizon(t *testing.T) {
	q := New(1000, false, false)
	q.Insert(rec(record.KindRun, 0))
	q.Insert(rec(record.KindRun, 1))
	q.Insert(rec(record.KindRun, 2))

	released := q.Drain()
	require.Len(t, released, 3)
	assert.Equal(t, 0, q.Len())
}

// TestUntimedLevelsCollapseRealTimeGaps covers spec §8 testable property 4:
// with untimed mode enabled, successive distinct times step the assigned
// level by exactly one regardless of the real time gap between them.
func TestUntimedLevelsCollapseRealTimeGaps(t *testing.T) {
	q := New(5000, true, false)

	a := rec(record.KindRun, 0)
	b := rec(record.KindRun, 1000)
	c := rec(record.KindRun, 1000) // same time as b: same level
	d := rec(record.KindRun, 1001)

	q.Insert(a)
	q.Insert(b)
	q.Insert(c)
	q.Insert(d)

	released := q.Drain()
	require.Len(t, released, 4)

	assert.EqualValues(t, 0, a.MSCLevel)
	assert.EqualValues(t, 1, b.MSCLevel)
	assert.EqualValues(t, 1, c.MSCLevel)
	assert.EqualValues(t, 2, d.MSCLevel)
}

func TestUntimedLevelsIgnoreClassesNotSelected(t *testing.T) {
	q := New(0, false, true) // vcd untimed only

	a := rec(record.KindSendMsg, 0) // MSC-only class
	b := rec(record.KindSendMsg, 50)

	q.Insert(a)
	q.Insert(b)

	// send_msg never carries the VCD class bit, so vcdLevel never advances.
	assert.EqualValues(t, 0, a.VCDLevel)
	assert.EqualValues(t, 0, b.VCDLevel)
}

func TestClassifyStampsClassOnInsert(t *testing.T) {
	q := New(0, false, false)
	r := rec(record.KindSendMsg, 0)
	q.Insert(r)
	assert.Equal(t, record.ClassMSC, r.Class)
}
