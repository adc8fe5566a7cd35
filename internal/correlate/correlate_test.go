package correlate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titglob/rtsv/internal/queue"
	"github.com/titglob/rtsv/internal/record"
)

func TestTryPairsSendAndRecv(t *testing.T) {
	q := queue.New(1000, false, false)
	recv := &record.Record{Cmd: record.KindRecvMsg, Time: 12, ID1: 1, ID2: 2, Text: "ping"}
	q.Insert(recv)

	send := &record.Record{Cmd: record.KindSendMsg, Time: 10, ID1: 1, ID2: 2, Text: "ping"}

	matched, err := Try(send, q)
	require.NoError(t, err)
	require.Same(t, recv, matched)

	assert.EqualValues(t, 2, send.Off) // 12 - 10
	assert.EqualValues(t, -2, recv.Off)
	assert.Same(t, recv, send.Correlate)
	assert.Same(t, send, recv.Correlate)
}

func TestTryIgnoresNonInitiatingKinds(t *testing.T) {
	q := queue.New(1000, false, false)
	send := &record.Record{Cmd: record.KindSendMsg, Time: 5, ID1: 1, ID2: 2, Text: "ping"}
	q.Insert(send)

	recv := &record.Record{Cmd: record.KindRecvMsg, Time: 10, ID1: 1, ID2: 2, Text: "ping"}
	matched, err := Try(recv, q)
	require.NoError(t, err)
	assert.Nil(t, matched)
	assert.Nil(t, recv.Correlate)
}

func TestTryNoMatchReturnsNil(t *testing.T) {
	q := queue.New(1000, false, false)
	send := &record.Record{Cmd: record.KindSendMsg, Time: 1, ID1: 1, ID2: 2, Text: "ping"}
	matched, err := Try(send, q)
	require.NoError(t, err)
	assert.Nil(t, matched)
}

// TestTryDetectsCausalityViolation covers scenario S6: a matching peer
// already buffered with an earlier time than the initiating Record is a
// broken trace, not a correlation.
func TestTryDetectsCausalityViolation(t *testing.T) {
	q := queue.New(1000, false, false)
	early := &record.Record{Cmd: record.KindRecvMsg, Time: 1, ID1: 1, ID2: 2, Text: "ping"}
	q.Insert(early)

	send := &record.Record{Cmd: record.KindSendMsg, Time: 10, ID1: 1, ID2: 2, Text: "ping"}
	matched, err := Try(send, q)
	assert.Nil(t, matched)
	assert.ErrorIs(t, err, ErrCausalityViolation)
	assert.Nil(t, send.Correlate)
}

// TestTryUsesMSCLevelWhenUntimed covers msc_untimed mode (spec §4.5): the
// offset must come from MSCLevel, not the raw wire Time, once untimed
// level assignment is enabled for MSC.
func TestTryUsesMSCLevelWhenUntimed(t *testing.T) {
	q := queue.New(1000, true, false)
	recv := &record.Record{Cmd: record.KindRecvMsg, Time: 100, MSCLevel: 5, ID1: 1, ID2: 2, Text: "ping"}
	q.Insert(recv)

	send := &record.Record{Cmd: record.KindSendMsg, Time: 10, MSCLevel: 3, ID1: 1, ID2: 2, Text: "ping"}

	matched, err := Try(send, q)
	require.NoError(t, err)
	require.Same(t, recv, matched)

	assert.EqualValues(t, 2, send.Off) // 5 - 3, not 100 - 10
	assert.EqualValues(t, -2, recv.Off)
}

func TestSeverUnlinksBothSides(t *testing.T) {
	a := &record.Record{}
	b := &record.Record{}
	a.Correlate = b
	b.Correlate = a

	Sever(a)
	assert.Nil(t, a.Correlate)
	assert.Nil(t, b.Correlate)
}

func TestSeverOnUnlinkedRecordIsNoop(t *testing.T) {
	a := &record.Record{}
	assert.NotPanics(t, func() { Sever(a) })
}
