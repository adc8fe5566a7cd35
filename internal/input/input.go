// Package input is the multiplexer that reads N descriptors concurrently,
// frames each one's records, and fans them into a single channel the
// driver's dispatch loop consumes (spec §4.2, §5 ADD). It never touches
// the queue or registry: its only job is turning bytes into tagged
// Records.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/titglob/rtsv/internal/record"
	"github.com/titglob/rtsv/internal/wire"
)

// ErrCausalityViolation is returned when a Source's resolved time does not
// monotonically increase (spec §9(b): the 32-bit wire time's wrap
// semantics are unspecified, so a wrap is treated as a broken stream).
var ErrCausalityViolation = errors.New("input: causality violation")

// Source is one input descriptor: its server-assigned identifier, codec,
// and the monotonic clock used to resolve reserved time values and to
// enforce the per-source causality invariant (spec §3 ADD, §9(b)).
type Source struct {
	ID       int
	Name     string
	binary   bool
	lastTime uint32
	seenAny  bool
}

// Msg is one multiplexer output: either a successfully framed Record, or a
// decode/causality error tagged with the Source it came from (spec §7).
type Msg struct {
	Rec      *record.Record
	Err      error
	SourceID int
}

// Multiplexer owns every open Source and the shared channel their reader
// goroutines publish onto, in the teacher's ReceiveNats fan-in shape
// (internal/memorystore/lineprotocol.go): one goroutine per descriptor
// does the blocking read, all of them write to one buffered channel, and
// the consumer is the sole place a Record is dispatched from.
type Multiplexer struct {
	sources []*Source
	ch      chan Msg
	wg      sync.WaitGroup

	// Now synthesizes the current server time for a Record whose wire
	// time is the reserved "synthesize" sentinel (spec §6.1). Open
	// installs a clock that always returns 0; driver.New replaces it with
	// the wall clock in Unix seconds.
	Now func() uint32
}

// Open resolves paths (or stdin if paths is empty) into live Sources and
// starts one reader goroutine per Source (spec §4.2). Extension `.bin`
// selects the binary codec; anything else uses the text codec.
func Open(paths []string) (*Multiplexer, error) {
	m := &Multiplexer{ch: make(chan Msg, 64), Now: func() uint32 { return 0 }}

	if len(paths) == 0 {
		src := &Source{ID: 0, Name: "<stdin>"}
		m.sources = append(m.sources, src)
		m.wg.Add(1)
		go m.readText(src, os.Stdin)
		return m, nil
	}

	files := make([]*os.File, len(paths))
	for i, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, opened := range files[:i] {
				opened.Close()
			}
			return nil, fmt.Errorf("input: opening %s: %w", p, err)
		}
		files[i] = f
	}

	for i, p := range paths {
		src := &Source{ID: i, Name: p, binary: strings.HasSuffix(p, ".bin")}
		m.sources = append(m.sources, src)
		m.wg.Add(1)
		if src.binary {
			go m.readBinary(src, files[i])
		} else {
			go m.readText(src, files[i])
		}
	}
	return m, nil
}

// Records returns the shared output channel. It is closed once every
// Source has reached EOF (spec §4.2's "stream end" signal).
func (m *Multiplexer) Records() <-chan Msg { return m.ch }

// Wait blocks until every reader goroutine has exited and closes the
// shared channel. Call after draining Records() is no longer required,
// or run it in its own goroutine alongside the consumer loop.
func (m *Multiplexer) Wait() {
	m.wg.Wait()
	close(m.ch)
}

func (m *Multiplexer) readText(src *Source, r io.ReadCloser) {
	defer m.wg.Done()
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		rec, err := wire.DecodeText(scanner.Text())
		if err != nil {
			m.ch <- Msg{Err: err, SourceID: src.ID}
			continue
		}
		if rec == nil { // comment or blank line
			continue
		}
		m.emit(src, rec)
	}
}

func (m *Multiplexer) readBinary(src *Source, r io.ReadCloser) {
	defer m.wg.Done()
	defer r.Close()

	br := bufio.NewReader(r)
	for {
		lenByte, err := br.ReadByte()
		if err == io.EOF {
			return
		}
		if err != nil {
			m.ch <- Msg{Err: fmt.Errorf("input: %s: %w", src.Name, err), SourceID: src.ID}
			return
		}
		if lenByte == 0 {
			m.ch <- Msg{Err: fmt.Errorf("%w: zero-length frame", wire.ErrMalformedRecord), SourceID: src.ID}
			return
		}

		payload := make([]byte, lenByte)
		if _, err := io.ReadFull(br, payload); err != nil {
			m.ch <- Msg{Err: fmt.Errorf("input: %s: truncated frame: %w", src.Name, err), SourceID: src.ID}
			return
		}

		rec, err := wire.DecodeBinary(payload)
		if err != nil {
			m.ch <- Msg{Err: err, SourceID: src.ID}
			continue
		}
		m.emit(src, rec)
	}
}

// emit resolves reserved time values (spec §6.1) and enforces the
// per-source monotonic-time invariant (spec §9(b)): a resolved time
// earlier than the last accepted one for this Source is a causality
// violation and the Record is dropped rather than forwarded.
func (m *Multiplexer) emit(src *Source, rec *record.Record) {
	rec.SourceID = src.ID
	rec.Time = src.resolveTime(rec.Time, m.Now)

	if src.seenAny && rec.Time < src.lastTime {
		m.ch <- Msg{Err: fmt.Errorf("input: source %d: %w: time %d precedes %d", src.ID, ErrCausalityViolation, rec.Time, src.lastTime), SourceID: src.ID}
		return
	}
	src.lastTime = rec.Time
	src.seenAny = true
	m.ch <- Msg{Rec: rec, SourceID: src.ID}
}

const (
	wireTimeSynthesize = record.TimeSynthesize
	wireTimeOrigin     = uint32(0xFFFFFFFF) // two's-complement encoding of record.TimeOrigin (-1)
	wireTimeLast       = uint32(0xFFFFFFFE) // two's-complement encoding of record.TimeLast (-2)
)

// resolveTime maps a reserved wire time value to a concrete tick value
// (spec §6.1): 0 synthesizes the current server time, the wire encodings
// of -1/-2 resolve to the stream origin and this Source's last accepted
// time respectively.
func (s *Source) resolveTime(raw uint32, now func() uint32) uint32 {
	switch raw {
	case wireTimeSynthesize:
		return now()
	case wireTimeOrigin:
		return 0
	case wireTimeLast:
		return s.lastTime
	default:
		return raw
	}
}
