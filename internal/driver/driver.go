// Package driver wires the input multiplexer, reorder queue, classifier,
// correlator and the MSC/VCD/SDL emitters into the single dispatch loop
// that runs a trace from first byte to drained queue (spec §5).
package driver

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/gops/agent"

	"github.com/titglob/rtsv/internal/classify"
	"github.com/titglob/rtsv/internal/config"
	"github.com/titglob/rtsv/internal/correlate"
	"github.com/titglob/rtsv/internal/input"
	"github.com/titglob/rtsv/internal/msc"
	"github.com/titglob/rtsv/internal/queue"
	"github.com/titglob/rtsv/internal/record"
	"github.com/titglob/rtsv/internal/registry"
	"github.com/titglob/rtsv/internal/rtsvlog"
	"github.com/titglob/rtsv/internal/sdl"
	"github.com/titglob/rtsv/internal/vcd"
)

// Stats are the counters the periodic reporter logs (spec §4.12 ADD). All
// fields are updated from the single dispatch loop goroutine but read from
// the gocron reporter goroutine, hence atomic.
type Stats struct {
	Received   atomic.Uint64
	Dispatched atomic.Uint64
	Rejected   atomic.Uint64
	Errors     atomic.Uint64
}

// Driver owns every stage of the pipeline for one run: a Driver is used
// once, from New through Run to Finalize.
type Driver struct {
	cfg *config.Config
	reg *registry.Registry
	q   *queue.Queue
	mux *input.Multiplexer

	msc *msc.Emitter
	vcd *vcd.Emitter
	sdl *sdl.Emitter

	mscFile *os.File
	vcdFile *os.File

	scheduler gocron.Scheduler
	Stats     Stats
}

// New opens the configured inputs and output backends and assembles the
// pipeline. Callers must call Close if New succeeds but Run is never
// called; see Close for which descriptors it releases.
func New(cfg *config.Config) (*Driver, error) {
	mux, err := input.Open(cfg.Inputs)
	if err != nil {
		return nil, fmt.Errorf("driver: %w", err)
	}

	d := &Driver{
		cfg: cfg,
		reg: registry.New(),
		q:   queue.New(cfg.Queue, cfg.MSCUntimed, cfg.VCDUntimed),
		mux: mux,
	}
	mux.Now = func() uint32 { return uint32(time.Now().Unix()) }

	if cfg.MSCPath != "" {
		f, err := os.Create(cfg.MSCPath)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("driver: creating %s: %w", cfg.MSCPath, err)
		}
		d.mscFile = f
		d.msc = msc.New(f, d.reg, cfg.MSCOptions())
		if err := d.msc.WriteDocumentPreamble(); err != nil {
			d.Close()
			return nil, fmt.Errorf("driver: msc preamble: %w", err)
		}
	}

	if cfg.VCDPath != "" {
		mode := vcd.ModeTwoFile
		if cfg.VCDFifo {
			mode = vcd.ModeFifo
		}
		opts := vcd.Options{Mode: mode, Freq: cfg.Freq}
		if cfg.VCDFifo {
			f, err := os.Create(cfg.VCDPath)
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("driver: creating %s: %w", cfg.VCDPath, err)
			}
			d.vcdFile = f
			d.vcd = vcd.NewFifo(f, d.reg, opts)
		} else {
			e, err := vcd.NewTwoFile(cfg.VCDPath+".def.tmp", cfg.VCDPath+".sim.tmp", cfg.VCDPath, d.reg, opts)
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("driver: %w", err)
			}
			d.vcd = e
		}
		if err := d.vcd.WriteHeader(cfg.Title); err != nil {
			d.Close()
			return nil, fmt.Errorf("driver: vcd header: %w", err)
		}
	}

	if cfg.SDLPath != "" {
		d.sdl = sdl.New()
	}

	if cfg.Gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			rtsvlog.Errorf("gops agent listen: %s", err)
		}
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("driver: scheduler: %w", err)
	}
	d.scheduler = s
	if cfg.ReportInterval > 0 {
		if _, err := s.NewJob(
			gocron.DurationJob(cfg.ReportInterval),
			gocron.NewTask(d.report),
		); err != nil {
			d.Close()
			return nil, fmt.Errorf("driver: scheduling reporter: %w", err)
		}
	}

	if cfg.MSCOut && d.msc != nil {
		if err := d.msc.StartDump(&record.Record{Cmd: record.KindStartDump}); err != nil {
			rtsvlog.Errorf("msc auto-start: %s", err)
		}
	}
	if cfg.VCDOut && d.vcd != nil {
		if err := d.vcd.StartDump(&record.Record{Cmd: record.KindStartDump}); err != nil {
			rtsvlog.Errorf("vcd auto-start: %s", err)
		}
	}

	return d, nil
}

func (d *Driver) report() {
	rtsvlog.Infof("received=%d dispatched=%d rejected=%d errors=%d queue_len=%d",
		d.Stats.Received.Load(), d.Stats.Dispatched.Load(), d.Stats.Rejected.Load(), d.Stats.Errors.Load(), d.q.Len())
}

// Run drives records from the multiplexer through the queue to the
// emitters until every input reaches EOF or ctx is cancelled, then drains
// whatever remains buffered (spec §5, §9(c)).
func (d *Driver) Run(ctx context.Context) error {
	d.scheduler.Start()

	go d.mux.Wait()

	records := d.mux.Records()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg, ok := <-records:
			if !ok {
				break loop
			}
			if msg.Err != nil {
				d.Stats.Errors.Add(1)
				rtsvlog.Errorf("input source %d: %s", msg.SourceID, msg.Err)
				continue
			}
			d.Stats.Received.Add(1)
			for _, rel := range d.q.Insert(msg.Rec) {
				d.process(rel)
			}
		}
	}

	for _, rel := range d.q.Drain() {
		d.process(rel)
	}
	return nil
}

// process classifies, correlates and dispatches one Record that the queue
// has released for output (spec §4.3-§4.8).
func (d *Driver) process(rec *record.Record) {
	res, err := classify.Process(d.reg, rec)
	if err != nil {
		d.Stats.Rejected.Add(1)
		rtsvlog.RecordError(err, rec)
		return
	}
	d.Stats.Dispatched.Add(1)

	// The emitters order by MSCLevel/VCDLevel; outside untimed mode that
	// level is the Record's raw time.
	if !d.cfg.MSCUntimed {
		rec.MSCLevel = int64(rec.Time)
	}
	if !d.cfg.VCDUntimed {
		rec.VCDLevel = int64(rec.Time)
	}

	if rec.Cmd == record.KindSendMsg || rec.Cmd == record.KindSetTimer {
		if _, err := correlate.Try(rec, d.q); err != nil {
			d.Stats.Errors.Add(1)
			rtsvlog.RecordError(err, rec)
		}
	}

	switch rec.Cmd {
	case record.KindStartDump:
		d.dispatchDumpControl(rec, true)
		return
	case record.KindStopDump:
		d.dispatchDumpControl(rec, false)
		return
	}

	if d.msc != nil {
		if err := d.msc.Dispatch(res, rec); err != nil {
			d.Stats.Errors.Add(1)
			rtsvlog.RecordError(err, rec)
		}
	}
	if d.vcd != nil {
		if err := d.vcd.Dispatch(res, rec); err != nil {
			d.Stats.Errors.Add(1)
			rtsvlog.RecordError(err, rec)
		}
	}
	if d.sdl != nil {
		if err := d.sdl.Dispatch(res, rec); err != nil {
			d.Stats.Errors.Add(1)
			rtsvlog.RecordError(err, rec)
		}
	}
}

// dispatchDumpControl starts or stops every configured backend's dump state
// (spec §6.1 start_dump/stop_dump apply uniformly across backends).
func (d *Driver) dispatchDumpControl(rec *record.Record, start bool) {
	toggle := func(name string, f func(*record.Record) error) {
		if err := f(rec); err != nil {
			d.Stats.Errors.Add(1)
			rtsvlog.RecordError(fmt.Errorf("%s: %w", name, err), rec)
		}
	}
	if d.msc != nil {
		if start {
			toggle("msc", d.msc.StartDump)
		} else {
			toggle("msc", d.msc.StopDump)
		}
	}
	if d.vcd != nil {
		if start {
			toggle("vcd", d.vcd.StartDump)
		} else {
			toggle("vcd", d.vcd.StopDump)
		}
	}
	if d.sdl != nil {
		if start {
			toggle("sdl", d.sdl.StartDump)
		} else {
			toggle("sdl", d.sdl.StopDump)
		}
	}
}

// Finalize closes every active backend document, shuts down the scheduler
// and then calls Close. Every backend is finalized even if an earlier one
// fails; the first error encountered is returned.
func (d *Driver) Finalize() error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if d.msc != nil {
		note(d.msc.Finalize(d.cfg.MSCPath))
	}
	if d.vcd != nil {
		note(d.vcd.Finalize())
	}
	if d.sdl != nil {
		note(d.sdl.Finalize())
	}

	if d.scheduler != nil {
		note(d.scheduler.Shutdown())
	}

	d.Close()
	return firstErr
}

// Close closes the MSC output file and the fifo-mode VCD output file,
// whether or not Finalize ran. It does not close the two-file-mode VCD
// temporary files, which only vcd.Emitter.Finalize closes, or the input
// files, which each reader goroutine closes when it returns.
func (d *Driver) Close() {
	if d.mscFile != nil {
		d.mscFile.Close()
		d.mscFile = nil
	}
	if d.vcdFile != nil {
		d.vcdFile.Close()
		d.vcdFile = nil
	}
}
