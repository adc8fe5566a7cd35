package driver

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titglob/rtsv/internal/config"
)

func writeTrace(t *testing.T, content string) string {
	t.Helper()
	path := t.TempDir() + "/trace.txt"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunDrainsInputAndProducesVCDOutput(t *testing.T) {
	trace := writeTrace(t, "decl_task @0 #0 0x1 T1\n"+
		"decl_bool @0 #0 0x2 Flag\n"+
		"set_bool @1 0x2 1\n"+
		"set_bool @2 0x2 0\n")

	vcdOut := t.TempDir() + "/out.vcd"
	cfg, _, err := config.Parse([]string{"-vcd", vcdOut, "-vcd_fifo", "-queue", "0", "--", trace})
	require.NoError(t, err)

	d, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Run(ctx))
	require.NoError(t, d.Finalize())

	out, rerr := os.ReadFile(vcdOut)
	require.NoError(t, rerr)
	content := string(out)
	assert.Contains(t, content, "$timescale")
	assert.Contains(t, content, "$enddefinitions $end")

	assert.EqualValues(t, 4, d.Stats.Received.Load())
	assert.EqualValues(t, 4, d.Stats.Dispatched.Load())
	assert.Zero(t, d.Stats.Rejected.Load())
}

func TestRunRejectsUnknownReference(t *testing.T) {
	trace := writeTrace(t, "set_bool @0 0x99 1\n")

	vcdOut := t.TempDir() + "/out.vcd"
	cfg, _, err := config.Parse([]string{"-vcd", vcdOut, "-vcd_fifo", "-queue", "0", "--", trace})
	require.NoError(t, err)

	d, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Run(ctx))
	require.NoError(t, d.Finalize())

	assert.EqualValues(t, 1, d.Stats.Received.Load())
	assert.EqualValues(t, 1, d.Stats.Rejected.Load())
	assert.Zero(t, d.Stats.Dispatched.Load())
}

func TestRunStopsEarlyOnContextCancellation(t *testing.T) {
	trace := writeTrace(t, "decl_task @0 #0 0x1 T1\n")

	cfg, _, err := config.Parse([]string{"-queue", "0", "--", trace})
	require.NoError(t, err)

	d, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	require.NoError(t, d.Finalize())
}
