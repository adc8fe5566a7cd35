package sdl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titglob/rtsv/internal/record"
)

func TestStartStopDumpToggleActive(t *testing.T) {
	e := New()
	require.NoError(t, e.StartDump(&record.Record{}))
	require.Error(t, e.StartDump(&record.Record{}))
	require.NoError(t, e.StopDump(&record.Record{}))
	require.Error(t, e.StopDump(&record.Record{}))
}

func TestDispatchAlwaysNoop(t *testing.T) {
	e := New()
	assert.NoError(t, e.Dispatch(nil, &record.Record{Cmd: record.KindSetBool}))
}

func TestFinalizeNoop(t *testing.T) {
	e := New()
	assert.NoError(t, e.Finalize())
}
