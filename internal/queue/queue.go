// Package queue implements the time-ordered reorder buffer that integrates
// multiple asynchronous client streams into one causally-ordered Record
// stream (spec §3.3, §4.5).
package queue

import (
	"github.com/titglob/rtsv/internal/classify"
	"github.com/titglob/rtsv/internal/record"
)

// Queue is a FIFO ordered by ascending Record.Time. It is not safe for
// concurrent use: the driver's single dispatch loop is its only owner
// (spec §5).
type Queue struct {
	head, tail *record.Record
	len        int

	flushHorizon uint32
	mscUntimed   bool
	vcdUntimed   bool

	seq uint64
}

// New creates an empty Queue. flushHorizon is the maximum allowed gap (in
// Record.Time units) between the queue's oldest and newest element (spec
// §4.5); mscUntimed/vcdUntimed enable per-backend untimed level assignment
// (spec §4.5).
func New(flushHorizon uint32, mscUntimed, vcdUntimed bool) *Queue {
	return &Queue{flushHorizon: flushHorizon, mscUntimed: mscUntimed, vcdUntimed: vcdUntimed}
}

// Len returns the number of Records currently buffered.
func (q *Queue) Len() int { return q.len }

func (q *Queue) classify(r *record.Record) {
	if rule, ok := classify.Lookup(r.Cmd); ok {
		r.Class = rule.Class
	}
}

func (q *Queue) linkTail(r *record.Record) {
	r.SetQueueLinks(q.tail, nil)
	if q.tail != nil {
		q.tail.SetQueueNext(r)
	} else {
		q.head = r
	}
	q.tail = r
	q.len++
}

func (q *Queue) linkHead(r *record.Record) {
	r.SetQueueLinks(nil, q.head)
	if q.head != nil {
		q.head.SetQueuePrev(r)
	} else {
		q.tail = r
	}
	q.head = r
	q.len++
}

func (q *Queue) linkAfter(r, after *record.Record) {
	next := after.QueueNext()
	r.SetQueueLinks(after, next)
	after.SetQueueNext(r)
	if next != nil {
		next.SetQueuePrev(r)
	} else {
		q.tail = r
	}
	q.len++
}

func (q *Queue) unlink(r *record.Record) {
	prev, next := r.QueuePrev(), r.QueueNext()
	if prev != nil {
		prev.SetQueueNext(next)
	} else {
		q.head = next
	}
	if next != nil {
		next.SetQueuePrev(prev)
	} else {
		q.tail = prev
	}
	r.SetQueueLinks(nil, nil)
	q.len--
}

// Insert adds r to the queue in time order, stamps its insertion sequence,
// and returns every Record now eligible for dispatch per the flush horizon
// (spec §4.5), oldest first. A Record is linked after every buffered Record
// with an equal time, so time ties keep insertion order (spec §5).
// Callers must dispatch the returned Records before inserting again, since
// untimed level assignment (if enabled) stamps every buffered Record on
// each flush pass and assumes no concurrent mutation.
func (q *Queue) Insert(r *record.Record) []*record.Record {
	q.classify(r)
	q.seq = q.seq + 1
	r.SetSeq(q.seq)

	switch {
	case q.head == nil:
		q.linkTail(r)
		return nil

	case r.Time >= q.tail.Time:
		q.linkTail(r)
		return q.flush()

	case r.Time < q.head.Time:
		q.linkHead(r)
		return q.flush()

	default:
		for n := q.tail; n != nil; n = n.QueuePrev() {
			if r.Time >= n.Time {
				q.linkAfter(r, n)
				return nil
			}
		}
		// Every remaining element has a strictly greater time than r;
		// r belongs at the head (can't actually happen given the guard
		// above, kept for safety).
		q.linkHead(r)
		return nil
	}
}

// flush assigns untimed levels (if enabled) and extracts, in FIFO order,
// every Record whose time is at least flushHorizon older than the current
// tail (time + flushHorizon <= tail time, spec §4.5).
func (q *Queue) flush() []*record.Record {
	if q.head == nil {
		return nil
	}

	if q.mscUntimed || q.vcdUntimed {
		q.assignUntimedLevels()
	}

	end := q.tail.Time
	var released []*record.Record
	for n := q.head; n != nil; {
		if uint64(n.Time)+uint64(q.flushHorizon) > uint64(end) {
			break
		}
		next := n.QueueNext()
		q.unlink(n)
		released = append(released, n)
		n = next
	}
	return released
}

// assignUntimedLevels walks the queue head-to-tail, collapsing real-time
// gaps into unit-step levels while preserving strict partial order (spec
// §4.5). It resumes from the head's already-assigned levels so repeated
// flush passes never regress a level that was already handed out.
func (q *Queue) assignUntimedLevels() {
	mscLevel := q.head.MSCLevel
	vcdLevel := q.head.VCDLevel
	rtLevel := int64(q.head.Time)

	for n := q.head; n != nil; n = n.QueueNext() {
		if int64(n.Time) > rtLevel {
			rtLevel = int64(n.Time)
			if n.Class.Has(record.ClassMSC) {
				mscLevel++
			}
			if n.Class.Has(record.ClassVCD) {
				vcdLevel++
			}
		}
		n.MSCLevel = mscLevel
		n.VCDLevel = vcdLevel
	}
}

// Drain collapses the flush horizon to zero and releases every remaining
// buffered Record in FIFO time order, for use at stream end (spec §3.3).
func (q *Queue) Drain() []*record.Record {
	horizon := q.flushHorizon
	q.flushHorizon = 0
	released := q.flush()
	q.flushHorizon = horizon
	return released
}

// MSCTime returns the value the MSC backend orders by for rec: its
// untimed MSCLevel if msc_untimed is enabled, otherwise its raw wire Time
// (spec §4.5's msc_get_time). Package correlate uses this, instead of
// rec.Time directly, so a correlation offset is computed in the same unit
// the MSC emitter paginates by.
func (q *Queue) MSCTime(rec *record.Record) int64 {
	if q.mscUntimed {
		return rec.MSCLevel
	}
	return int64(rec.Time)
}

// Find returns the first still-buffered Record, in time order, for which
// pred returns true, or nil. Package correlate uses this to pair a Record
// about to be dispatched with a later peer that is still waiting in the
// queue (spec §4.6).
func (q *Queue) Find(pred func(*record.Record) bool) *record.Record {
	for n := q.head; n != nil; n = n.QueueNext() {
		if pred(n) {
			return n
		}
	}
	return nil
}

// Times returns the buffered Records' times in current queue order, for
// tests verifying the ordering invariant (spec §8 property 2).
func (q *Queue) Times() []uint32 {
	out := make([]uint32, 0, q.len)
	for n := q.head; n != nil; n = n.QueueNext() {
		out = append(out, n.Time)
	}
	return out
}
