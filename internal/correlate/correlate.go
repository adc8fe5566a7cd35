// Package correlate pairs asynchronous send/receive and timer/timeout
// Records so the MSC emitter can draw a single diagonal arrow instead of
// two disconnected events (spec §4.6).
package correlate

import (
	"errors"
	"fmt"

	"github.com/titglob/rtsv/internal/queue"
	"github.com/titglob/rtsv/internal/record"
)

// ErrCausalityViolation is returned when a matching Record is already
// buffered with a time earlier than the initiating Record's — the trace
// claims a reply arrived before the request that provoked it (spec §7,
// scenario S6).
var ErrCausalityViolation = errors.New("correlate: causality violation")

// Try looks for a Record still buffered in q that matches m by (id1, id2,
// text) — the correlation key used by send_msg/recv_msg and
// set_timer/timeout/stop_timer pairs alike; the peer's own command kind is
// not checked (spec §4.6). Only send_msg and set_timer ever initiate a
// search, since they are always the earlier half of a pair and are
// dispatched from the queue before their later peer ages out.
//
// On a match, both Records' Off fields are set to the signed level/time
// delta between them and their Correlate pointers are linked
// symmetrically. Try never mutates m or its peer when no match is found or
// a causality violation is detected.
func Try(m *record.Record, q *queue.Queue) (*record.Record, error) {
	if m.Cmd != record.KindSendMsg && m.Cmd != record.KindSetTimer {
		return nil, nil
	}

	k := q.Find(func(r *record.Record) bool {
		return r.ID1 == m.ID1 && r.ID2 == m.ID2 && r.Text == m.Text
	})
	if k == nil {
		return nil, nil
	}

	mt, kt := q.MSCTime(m), q.MSCTime(k)
	if kt < mt {
		return nil, fmt.Errorf("%w: %s@%d matched %s@%d", ErrCausalityViolation, m.Cmd, m.Time, k.Cmd, k.Time)
	}

	m.Off = kt - mt
	k.Off = -m.Off
	m.Correlate = k
	k.Correlate = m
	return k, nil
}

// Sever unlinks m from its correlated peer, if any. The MSC emitter calls
// this when a page break falls between two correlated Records, since an
// arrow cannot span a page (spec §4.7).
func Sever(m *record.Record) {
	if m.Correlate == nil {
		return
	}
	m.Correlate.Correlate = nil
	m.Correlate = nil
}
