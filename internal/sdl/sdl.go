// Package sdl is the SDL (Specification and Description Language) backend
// stub. The original tool's -sdl flag was recognized but never implemented
// (spec §4.9 ADD, a Non-goal of spec.md that the expanded spec still gives
// a home in the dispatch pipeline so adding a real renderer later is a
// matter of filling in Dispatch, not rewiring the driver).
package sdl

import (
	"fmt"

	"github.com/titglob/rtsv/internal/classify"
	"github.com/titglob/rtsv/internal/record"
)

// Emitter is a no-op sink shaped like msc.Emitter and vcd.Emitter so the
// driver can treat all three backends uniformly (spec §4.9, §5).
type Emitter struct {
	active bool
}

// New creates an inactive Emitter.
func New() *Emitter { return &Emitter{} }

// StartDump activates the sink (spec §6.1 start_dump).
func (e *Emitter) StartDump(rec *record.Record) error {
	if e.active {
		return fmt.Errorf("sdl: dump already active")
	}
	e.active = true
	return nil
}

// StopDump deactivates the sink (spec §6.1 stop_dump).
func (e *Emitter) StopDump(rec *record.Record) error {
	if !e.active {
		return fmt.Errorf("sdl: dump already inactive")
	}
	e.active = false
	return nil
}

// Dispatch discards every Record it is given; SDL rendering is out of scope
// (spec.md Non-goals) but the class bit and dispatch slot stay live so a
// future renderer needs no driver changes.
func (e *Emitter) Dispatch(res *classify.Resolved, rec *record.Record) error {
	return nil
}

// Finalize is a no-op; there is no document to close.
func (e *Emitter) Finalize() error { return nil }
