package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStringRoundTripsThroughParseKind(t *testing.T) {
	for _, k := range []Kind{KindDeclTask, KindSetBool, KindSendMsg, KindStartDump, KindDelVar} {
		name := k.String()
		parsed, ok := ParseKind(name)
		assert.True(t, ok, "ParseKind(%q)", name)
		assert.Equal(t, k, parsed)
	}
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "unknown", Kind(255).String())
}

func TestParseKindRejectsUnrecognizedName(t *testing.T) {
	_, ok := ParseKind("not_a_command")
	assert.False(t, ok)
}

func TestClassHas(t *testing.T) {
	c := ClassMSC | ClassVCD
	assert.True(t, c.Has(ClassMSC))
	assert.True(t, c.Has(ClassVCD))
	assert.False(t, c.Has(ClassSDL))
}

func TestQueueLinkAccessors(t *testing.T) {
	a := &Record{Cmd: KindDeclTask}
	b := &Record{Cmd: KindSetBool}
	a.SetQueueLinks(nil, b)
	b.SetQueueLinks(a, nil)

	assert.Nil(t, a.QueuePrev())
	assert.Equal(t, b, a.QueueNext())
	assert.Equal(t, a, b.QueuePrev())
	assert.Nil(t, b.QueueNext())

	a.SetQueueNext(nil)
	assert.Nil(t, a.QueueNext())
	b.SetQueuePrev(nil)
	assert.Nil(t, b.QueuePrev())
}

func TestSeqAccessors(t *testing.T) {
	r := &Record{}
	assert.EqualValues(t, 0, r.Seq())
	r.SetSeq(42)
	assert.EqualValues(t, 42, r.Seq())
}

func TestRecordStringIncludesFields(t *testing.T) {
	r := &Record{Cmd: KindSetBool, Time: 5, SourceID: 1, GroupID: 2, ID1: 3, ID2: 1, Text: "x"}
	s := r.String()
	assert.Contains(t, s, "set_bool")
	assert.Contains(t, s, "@5")
}
