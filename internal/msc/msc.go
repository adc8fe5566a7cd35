// Package msc renders the Message Sequence Chart (MSC) backend: a
// msc.sty LaTeX document built incrementally as Records are dispatched,
// with page pagination, instance redraw across pages, correlation arrows,
// and a final LaTeX/dvipdf shellout (spec §4.7).
package msc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/titglob/rtsv/internal/classify"
	"github.com/titglob/rtsv/internal/correlate"
	"github.com/titglob/rtsv/internal/record"
	"github.com/titglob/rtsv/internal/registry"
)

// MarkGrain controls how often a level mark annotation is drawn.
type MarkGrain int

const (
	MarkGrainNone MarkGrain = iota
	MarkGrainPage
	MarkGrainLevel
)

// MarkDisplay controls what a level mark annotation shows.
type MarkDisplay int

const (
	MarkDisplayNone MarkDisplay = iota
	MarkDisplayRealtime
	MarkDisplayLevel
	MarkDisplayBoth
)

// Options configures document layout and pagination (spec §6.2's -msc_*
// flags).
type Options struct {
	PageMaxLevels int64
	LevelHeightMM int
	BoxHeightMM   int
	InstDistMM    int
	MarkGrain     MarkGrain
	MarkDisplay   MarkDisplay
}

// DefaultOptions mirrors the original tool's built-in defaults.
func DefaultOptions() Options {
	return Options{
		PageMaxLevels: 30,
		LevelHeightMM: 8,
		BoxHeightMM:   4,
		InstDistMM:    25,
		MarkGrain:     MarkGrainPage,
		MarkDisplay:   MarkDisplayBoth,
	}
}

// Emitter drives one MSC document. It is not safe for concurrent use; the
// driver's single dispatch loop is its only writer (spec §5).
type Emitter struct {
	w    *bufio.Writer
	reg  *registry.Registry
	opts Options

	active        bool
	level         int64
	page          int64
	pageInstances int
	maxInstances  int
}

// New creates an Emitter that writes to w.
func New(w io.Writer, reg *registry.Registry, opts Options) *Emitter {
	return &Emitter{w: bufio.NewWriter(w), reg: reg, opts: opts}
}

// WriteDocumentPreamble writes the msc.sty document header. PAPERWIDTH and
// PAPERHEIGHT are left as literal tokens for Finalize to substitute once
// the true instance/level extent is known (spec §4.7).
func (e *Emitter) WriteDocumentPreamble() error {
	fmt.Fprintf(e.w, "\\documentclass{article}\n")
	fmt.Fprintf(e.w, "\\usepackage{msc}\n")
	fmt.Fprintf(e.w, "\\usepackage{geometry}\n")
	fmt.Fprintf(e.w, "\\geometry{paperwidth=PAPERWIDTHmm, paperheight=PAPERHEIGHTmm}\n")
	fmt.Fprintf(e.w, "\\geometry{top=1cm, bottom=1cm, left=1cm, right=1cm}\n")
	fmt.Fprintf(e.w, "\\begin{document}\n")
	return e.w.Flush()
}

// StartDump activates the chart and opens the first msc environment (spec
// §6.1 start_dump).
func (e *Emitter) StartDump(rec *record.Record) error {
	if e.active {
		return fmt.Errorf("msc: dump already active")
	}
	e.active = true
	e.page = int64(rec.MSCLevel)
	e.level = e.page
	return e.beginChart("msc", rec.Time)
}

// StopDump closes the currently open msc environment (spec §6.1 stop_dump).
func (e *Emitter) StopDump(rec *record.Record) error {
	if !e.active {
		return fmt.Errorf("msc: dump already inactive")
	}
	if err := e.endChart(rec.Time); err != nil {
		return err
	}
	e.active = false
	return nil
}

func (e *Emitter) beginChart(title string, time uint32) error {
	fmt.Fprintf(e.w, "\\begin{msc}{%s}\n", title)
	fmt.Fprintf(e.w, "\\setlength{\\topheaddist}{%dmm}\n", e.opts.LevelHeightMM)
	fmt.Fprintf(e.w, "\\setlength{\\levelheight}{%dmm}\n", e.opts.LevelHeightMM)
	fmt.Fprintf(e.w, "\\setlength{\\bottomfootdist}{%dmm}\n", e.opts.LevelHeightMM)
	fmt.Fprintf(e.w, "\\setlength{\\actionheight}{%dmm}\n", e.opts.BoxHeightMM)
	fmt.Fprintf(e.w, "\\setlength{\\conditionheight}{%dmm}\n", e.opts.BoxHeightMM)
	fmt.Fprintf(e.w, "\\setlength{\\instheadheight}{%dmm}\n", e.opts.BoxHeightMM)
	fmt.Fprintf(e.w, "\\setlength{\\firstlevelheight}{%dmm}\n", e.opts.BoxHeightMM)
	fmt.Fprintf(e.w, "\\setlength{\\lastlevelheight}{%dmm}\n", e.opts.BoxHeightMM)
	fmt.Fprintf(e.w, "\\setlength{\\instdist}{%dmm}\n", e.opts.InstDistMM)
	fmt.Fprintf(e.w, "\\setlength{\\envinstdist}{\\instdist}\n")
	fmt.Fprintf(e.w, "\\setlength{\\instfootheight}{3mm}\n")
	fmt.Fprintf(e.w, "\\setlength{\\markdist}{0mm}\n")

	e.pageInstances = 0
	e.redraw()

	if e.opts.MarkGrain == MarkGrainPage {
		e.writeMark("bl", time)
	}
	return e.w.Flush()
}

func (e *Emitter) endChart(time uint32) error {
	if e.opts.MarkGrain == MarkGrainPage {
		e.writeMark("tl", time)
	}
	fmt.Fprintf(e.w, "\\end{msc}\n")
	if e.pageInstances > e.maxInstances {
		e.maxInstances = e.pageInstances
	}
	return e.w.Flush()
}

func (e *Emitter) writeMark(pos string, time uint32) {
	switch e.opts.MarkDisplay {
	case MarkDisplayNone:
	case MarkDisplayBoth:
		fmt.Fprintf(e.w, "\\mscmark[%s]{%d : %d}{envleft}\n", pos, time, e.level)
	case MarkDisplayRealtime:
		fmt.Fprintf(e.w, "\\mscmark[%s]{%d}{envleft}\n", pos, time)
	case MarkDisplayLevel:
		fmt.Fprintf(e.w, "\\mscmark[%s]{%d}{envleft}\n", pos, e.level)
	}
}

// redraw restates every live Object's declaration and current Status at
// the top of a new page (spec §4.7), since each page is an independent
// msc environment with no memory of prior declarations.
func (e *Emitter) redraw() {
	e.reg.Walk(func(o *registry.Object, exit bool) bool {
		if exit || o.Zombie {
			return false
		}
		switch o.Type {
		case registry.TypeTask:
			e.declInstance(o, "task", o.Name)
		case registry.TypeMutex:
			e.declInstance(o, "mutex", o.Name)
		case registry.TypeObject:
			e.declInstance(o, o.SanitizedKey(), o.Name)
		default:
			return false
		}

		status := o.Status
		o.Status = registry.StatusInit
		e.writeStatus(o, status)
		o.Status = status
		return false
	})
}

func (e *Emitter) declInstance(o *registry.Object, kind, name string) {
	e.pageInstances++
	fmt.Fprintf(e.w, "\\declinst{%s}{%s}{%s}\n", o.Label, kind, name)
}

func (e *Emitter) writeStatus(o *registry.Object, status registry.Status) {
	switch status {
	case registry.StatusPreempt:
		fmt.Fprintf(e.w, "\\regionstart{suspension}{%s}\n", o.Label)
	case registry.StatusRun:
		fmt.Fprintf(e.w, "\\regionstart{activation}{%s}\n", o.Label)
	case registry.StatusWait:
		fmt.Fprintf(e.w, "\\regionstart{coregion}{%s}\n", o.Label)
	case registry.StatusReady, registry.StatusInit:
		// ready is the default rendering; nothing to draw.
	}
}

// Dispatch renders one Record, handling pagination, level marks,
// correlation severing, and the per-command macro (spec §4.7, grounded on
// the original's process_cmd + exec_cmd).
func (e *Emitter) Dispatch(res *classify.Resolved, rec *record.Record) error {
	if !rec.Class.Has(record.ClassMSC) || !e.active {
		return nil
	}

	switch {
	case int64(rec.MSCLevel) > e.level:
		for int64(rec.MSCLevel)-e.page >= e.opts.PageMaxLevels {
			off := e.opts.PageMaxLevels - (e.level - e.page)
			fmt.Fprintf(e.w, "\\nextlevel[%d]\n", off)
			e.level += off
			if err := e.endChart(rec.Time); err != nil {
				return err
			}
			fmt.Fprintf(e.w, "\\newpage\n")
			e.page = e.level
			if err := e.beginChart("msc", rec.Time); err != nil {
				return err
			}
		}
		fmt.Fprintf(e.w, "\\nextlevel[%d]\n", int64(rec.MSCLevel)-e.level)
		e.level = int64(rec.MSCLevel)
		if e.opts.MarkGrain == MarkGrainLevel {
			e.writeMark("bl", rec.Time)
		}

	case int64(rec.MSCLevel) < e.level:
		return fmt.Errorf("msc: old message %s@%d", rec.Cmd, rec.Time)
	}

	if rec.Correlate != nil && int64(rec.MSCLevel)+rec.Off-e.page >= e.opts.PageMaxLevels {
		correlate.Sever(rec)
	}

	return e.macro(res, rec)
}

// macro writes the LaTeX line(s) for one command, mirroring the original's
// per-command exec_* functions (spec §6.1).
func (e *Emitter) macro(res *classify.Resolved, rec *record.Record) error {
	switch rec.Cmd {
	case record.KindDeclTask:
		e.declInstance(res.Obj1, "task", rec.Text)
	case record.KindDeclMutex:
		e.declInstance(res.Obj1, "mutex", rec.Text)
	case record.KindDeclObject:
		typ, name := splitTypeName(rec.Text)
		e.declInstance(res.Obj1, typ, name)

	case record.KindCreateTask:
		fmt.Fprintf(e.w, "\\dummyinst{%s}\n", res.Obj2.Label)
		fmt.Fprintf(e.w, "\\create{spawn}[t]{%s}[0.5]{%s}{task}{%s}\n", res.Obj1.Label, res.Obj2.Label, rec.Text)
		e.pageInstances++
	case record.KindCreateMutex:
		fmt.Fprintf(e.w, "\\dummyinst{%s}\n", res.Obj2.Label)
		fmt.Fprintf(e.w, "\\create{}[t]{%s}[0.5]{%s}{mutex}{%s}\n", res.Obj1.Label, res.Obj2.Label, rec.Text)
		e.pageInstances++
	case record.KindCreateObj:
		inst, name := splitTypeName(rec.Text)
		fmt.Fprintf(e.w, "\\dummyinst{%s}\n", res.Obj2.Label)
		fmt.Fprintf(e.w, "\\create{}[t]{%s}[0.5]{%s}{%s}{%s}\n", res.Obj1.Label, res.Obj2.Label, name, inst)
		e.pageInstances++

	case record.KindDelTask:
		fmt.Fprintf(e.w, "\\stop{%s}\n", res.Obj2.Label)
		if res.Obj1 != res.Obj2 {
			fmt.Fprintf(e.w, "\\mess{kill}{%s}{%s}\n", res.Obj1.Label, res.Obj2.Label)
		}
	case record.KindDelMutex, record.KindDelObj:
		fmt.Fprintf(e.w, "\\stop{%s}\n", res.Obj2.Label)
		if res.Obj1 != res.Obj2 {
			fmt.Fprintf(e.w, "\\mess{}{%s}{%s}\n", res.Obj1.Label, res.Obj2.Label)
		}

	case record.KindSendMsg:
		if rec.Correlate == nil {
			fmt.Fprintf(e.w, "\\lost[r]{%s}{}{%s}\n", rec.Text, res.Obj1.Label)
		} else {
			fmt.Fprintf(e.w, "\\mess{%s}{%s}[0.1]{%s}[%d]\n", rec.Text, res.Obj1.Label, res.Obj2.Label, rec.Off)
		}
	case record.KindRecvMsg:
		if rec.Correlate == nil {
			fmt.Fprintf(e.w, "\\found[r]{%s}{}{%s}\n", rec.Text, res.Obj1.Label)
		}

	case record.KindCall:
		fmt.Fprintf(e.w, "\\mess{%s}{%s}{%s}\n", rec.Text, res.Obj1.Label, res.Obj2.Label)
		if res.Obj2.Status != registry.StatusRun {
			fmt.Fprintf(e.w, "\\regionstart{activation}{%s}\n", res.Obj2.Label)
		}
		res.Obj2.Status = registry.StatusRun

	case record.KindReturn:
		fmt.Fprintf(e.w, "\\order{%s}{%s}\n", res.Obj1.Label, res.Obj2.Label)
		if res.Obj1.Status == registry.StatusRun {
			fmt.Fprintf(e.w, "\\regionend{%s}\n", res.Obj1.Label)
		}
		res.Obj1.Status = registry.StatusReady

	case record.KindTake:
		fmt.Fprintf(e.w, "\\mess{take}{%s}{%s}\n", res.Obj1.Label, res.Obj2.Label)
	case record.KindGive:
		fmt.Fprintf(e.w, "\\mess{give}{%s}{%s}\n", res.Obj1.Label, res.Obj2.Label)

	case record.KindAcquire:
		fmt.Fprintf(e.w, "\\mess*{acquire}{%s}{%s}\n", res.Obj1.Label, res.Obj2.Label)
		if res.Obj1.Status != registry.StatusRun {
			fmt.Fprintf(e.w, "\\regionstart{activation}{%s}\n", res.Obj1.Label)
		}
		if res.Obj2.Status != registry.StatusReady {
			fmt.Fprintf(e.w, "\\regionend{%s}\n", res.Obj2.Label)
		}
		res.Obj1.Status = registry.StatusRun
		res.Obj2.Status = registry.StatusReady

	case record.KindReady:
		if res.Obj1.Status != registry.StatusReady {
			fmt.Fprintf(e.w, "\\regionend{%s}\n", res.Obj1.Label)
		}
		res.Obj1.Status = registry.StatusReady
	case record.KindRun:
		if res.Obj1.Status != registry.StatusRun {
			fmt.Fprintf(e.w, "\\regionstart{activation}{%s}\n", res.Obj1.Label)
		}
		res.Obj1.Status = registry.StatusRun
	case record.KindPreempt:
		if res.Obj1.Status != registry.StatusPreempt {
			fmt.Fprintf(e.w, "\\regionstart{suspension}{%s}\n", res.Obj1.Label)
		}
		res.Obj1.Status = registry.StatusPreempt
	case record.KindWait:
		if res.Obj1.Status != registry.StatusWait {
			fmt.Fprintf(e.w, "\\regionstart{coregion}{%s}\n", res.Obj1.Label)
		}
		res.Obj1.Status = registry.StatusWait
	case record.KindSwitch:
		fmt.Fprintf(e.w, "\\mess*{switch}{%s}{%s}\n", res.Obj1.Label, res.Obj2.Label)

	case record.KindComment:
		fmt.Fprintf(e.w, "\\msccomment[r]{%s}{%s}\n", rec.Text, res.Obj1.Label)
	case record.KindAction:
		fmt.Fprintf(e.w, "\\action*{%s}{%s}\n", rec.Text, res.Obj1.Label)

	case record.KindSetTimer:
		switch {
		case rec.Correlate == nil:
			fmt.Fprintf(e.w, "\\settimer[r]{%s}{%s}\n", rec.Text, res.Obj1.Label)
		case rec.Correlate.Cmd == record.KindTimeout:
			fmt.Fprintf(e.w, "\\settimeout[r]{%s}{%s}[%d]\n", rec.Text, res.Obj1.Label, rec.Off)
		case rec.Correlate.Cmd == record.KindStopTimer:
			fmt.Fprintf(e.w, "\\setstoptimer[r]{%s}{%s}[%d]\n", rec.Text, res.Obj1.Label, rec.Off)
		}
	case record.KindTimeout:
		if rec.Correlate == nil {
			fmt.Fprintf(e.w, "\\timeout[r]{%s}{%s}\n", rec.Text, res.Obj1.Label)
		}
	case record.KindStopTimer:
		if rec.Correlate == nil {
			fmt.Fprintf(e.w, "\\stoptimer[r]{%s}{%s}\n", rec.Text, res.Obj1.Label)
		}

	case record.KindSetState:
		fmt.Fprintf(e.w, "\\condition*{%s}{%s}\n", rec.Text, res.Obj1.Label)
	}
	return e.w.Flush()
}

func splitTypeName(text string) (typ, name string) {
	fields := strings.Fields(text)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return "", fields[0]
	default:
		return fields[0], fields[1]
	}
}

// Finalize writes the document trailer, substitutes the paper geometry now
// that the maximum instance/level extent is known, and shells out to
// latex/dvipdf to produce the final PDF (spec §4.7). docPath must name the
// file that w writes to: Finalize flushes the trailer to w, then reads and
// rewrites docPath itself. It does not check that the two are the same file.
func (e *Emitter) Finalize(docPath string) error {
	fmt.Fprintf(e.w, "\\end{document}\n")
	if err := e.w.Flush(); err != nil {
		return err
	}

	raw, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("msc: finalize: %w", err)
	}

	pageHeight := (e.opts.PageMaxLevels + 7) * int64(e.opts.LevelHeightMM)
	pageWidth := int64(e.maxInstances+1)*int64(e.opts.InstDistMM) + 20

	doc := strings.ReplaceAll(string(raw), "PAPERWIDTH", fmt.Sprintf("%d", pageWidth))
	doc = strings.ReplaceAll(doc, "PAPERHEIGHT", fmt.Sprintf("%d", pageHeight))
	if err := os.WriteFile(docPath, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("msc: finalize: %w", err)
	}

	basename := strings.TrimSuffix(docPath, ".tex")
	dir := "."
	if idx := strings.LastIndexByte(docPath, '/'); idx >= 0 {
		dir = docPath[:idx]
	}

	if err := runShellout(dir, "latex", docPath); err != nil {
		return fmt.Errorf("msc: latex: %w", err)
	}
	if err := runShellout(dir, "dvipdf", basename+".dvi"); err != nil {
		return fmt.Errorf("msc: dvipdf: %w", err)
	}
	return nil
}

func runShellout(dir, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}
