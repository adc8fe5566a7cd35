// Package record defines the canonical in-memory representation of a trace
// command and the closed enumeration of command kinds RTSV understands.
package record

import "fmt"

// Kind is the closed enumeration of trace command kinds (spec §6.1).
type Kind uint8

const (
	KindUnknown Kind = iota

	KindDeclTask
	KindDeclMutex
	KindDeclObject
	KindDeclBool
	KindDeclWire
	KindDeclInt
	KindDeclReal
	KindDeclString
	KindDeclEvent
	KindDeclTime
	KindDeclParam
	KindDeclReg

	KindCreateGroup
	KindDelGroup

	KindCreateTask
	KindCreateMutex
	KindCreateObj
	KindDelTask
	KindDelMutex
	KindDelObj

	KindSendMsg
	KindRecvMsg
	KindCall
	KindReturn
	KindTake
	KindGive
	KindAcquire

	KindReady
	KindRun
	KindPreempt
	KindWait
	KindSwitch

	KindComment
	KindAction
	KindSetTimer
	KindTimeout
	KindStopTimer

	KindSetState
	KindSetInt
	KindSetReal
	KindSetBool
	KindSetWire
	KindSetParam
	KindSetReg
	KindSetEvent
	KindSetTime
	KindSetString
	KindSetGlobal
	KindDelVar

	KindStartDump
	KindStopDump

	kindSentinel // must stay last
)

// names is the canonical wire string for each Kind, indexed by Kind.
var names = [kindSentinel]string{
	KindDeclTask:    "decl_task",
	KindDeclMutex:   "decl_mutex",
	KindDeclObject:  "decl_object",
	KindDeclBool:    "decl_bool",
	KindDeclWire:    "decl_wire",
	KindDeclInt:     "decl_int",
	KindDeclReal:    "decl_real",
	KindDeclString:  "decl_string",
	KindDeclEvent:   "decl_event",
	KindDeclTime:    "decl_time",
	KindDeclParam:   "decl_param",
	KindDeclReg:     "decl_reg",
	KindCreateGroup: "create_group",
	KindDelGroup:    "del_group",
	KindCreateTask:  "create_task",
	KindCreateMutex: "create_mutex",
	KindCreateObj:   "create_obj",
	KindDelTask:     "del_task",
	KindDelMutex:    "del_mutex",
	KindDelObj:      "del_obj",
	KindSendMsg:     "send_msg",
	KindRecvMsg:     "recv_msg",
	KindCall:        "call",
	KindReturn:      "return",
	KindTake:        "take",
	KindGive:        "give",
	KindAcquire:     "acquire",
	KindReady:       "ready",
	KindRun:         "run",
	KindPreempt:     "preempt",
	KindWait:        "wait",
	KindSwitch:      "switch",
	KindComment:     "comment",
	KindAction:      "action",
	KindSetTimer:    "set_timer",
	KindTimeout:     "timeout",
	KindStopTimer:   "stop_timer",
	KindSetState:    "set_state",
	KindSetInt:      "set_int",
	KindSetReal:     "set_real",
	KindSetBool:     "set_bool",
	KindSetWire:     "set_wire",
	KindSetParam:    "set_param",
	KindSetReg:      "set_reg",
	KindSetEvent:    "set_event",
	KindSetTime:     "set_time",
	KindSetString:   "set_string",
	KindSetGlobal:   "set_global",
	KindDelVar:      "del_var",
	KindStartDump:   "start_dump",
	KindStopDump:    "stop_dump",
}

var byName map[string]Kind

func init() {
	byName = make(map[string]Kind, len(names))
	for k, n := range names {
		if n != "" {
			byName[n] = Kind(k)
		}
	}
}

// String returns the canonical wire name, or "unknown" for an unrecognized Kind.
func (k Kind) String() string {
	if int(k) < len(names) && names[k] != "" {
		return names[k]
	}
	return "unknown"
}

// ParseKind resolves a canonical command name to its Kind. ok is false for
// any name not in the closed enumeration.
func ParseKind(name string) (k Kind, ok bool) {
	k, ok = byName[name]
	return k, ok
}

// Class is a bitmask of the rendering backends a command kind affects.
type Class uint8

const (
	ClassMSC Class = 1 << iota
	ClassVCD
	ClassSDL
)

func (c Class) Has(bit Class) bool { return c&bit != 0 }

// TextPayloadMax bounds the text field length accepted from the binary codec (spec §6.1).
const TextPayloadMax = 150

// ID is a source-local object identifier; it is carried as either 32 or 64
// bits on the wire (spec §4.1) but always widened to 64 bits in memory.
type ID uint64

// Record is the canonical in-memory form of one trace command (spec §3.1).
type Record struct {
	Cmd      Kind
	Time     uint32
	SourceID int

	GroupID ID
	ID1     ID
	ID2     ID
	Text    string

	// Derived-at-ingest fields, assigned by the queue/classifier.
	MSCLevel  int64
	VCDLevel  int64
	Class     Class
	Correlate *Record // peer Record this one is correlated with, MSC-only
	Off       int64   // signed level delta to Correlate

	queueNext *Record
	queuePrev *Record
	seq       uint64 // insertion sequence stamped by the queue
}

// QueueNext and QueuePrev expose the intrusive doubly-linked-list pointers
// used by package queue to chain buffered Records without a separate
// container allocation per Record.
func (r *Record) QueueNext() *Record { return r.queueNext }
func (r *Record) QueuePrev() *Record { return r.queuePrev }

// SetQueueLinks rewires both link pointers at once.
func (r *Record) SetQueueLinks(prev, next *Record) {
	r.queuePrev = prev
	r.queueNext = next
}

// SetQueueNext and SetQueuePrev rewire a single link pointer.
func (r *Record) SetQueueNext(next *Record) { r.queueNext = next }
func (r *Record) SetQueuePrev(prev *Record) { r.queuePrev = prev }

// Seq returns the insertion sequence stamped by the queue.
func (r *Record) Seq() uint64 { return r.seq }

// SetSeq stamps the insertion sequence; called once by the queue on Insert.
func (r *Record) SetSeq(seq uint64) { r.seq = seq }

func (r *Record) String() string {
	return fmt.Sprintf("%s@%d(src=%d,grp=%d,id1=%d,id2=%d,%q)",
		r.Cmd, r.Time, r.SourceID, r.GroupID, r.ID1, r.ID2, r.Text)
}

// Reserved time values a client may send (spec §6.1); the multiplexer
// resolves these before a Record enters the queue.
const (
	TimeSynthesize uint32 = 0                  // server fills in current time
	TimeOrigin     int64  = -1                 // zero
	TimeLast       int64  = -2                 // last recorded time for the source
)
