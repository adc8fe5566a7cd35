// Package registry is the typed directory of live and zombie trace objects,
// organized as a tree of groups (spec §3.2, §4.4).
package registry

import (
	"strings"

	"github.com/titglob/rtsv/internal/record"
)

// Type is the closed set of object kinds the registry can hold.
type Type uint8

const (
	TypeGroup Type = iota
	TypeTask
	TypeMutex
	TypeObject
	TypeReal
	TypeReg
	TypeParam
	TypeWire
	TypeBool
	TypeTime
	TypeEvent
	TypeString
	TypeInt
)

// Mask is a bitset of Type, used by the classifier to describe which
// object types a command's operand may resolve to.
type Mask uint16

func (m Mask) Has(t Type) bool { return m&(1<<t) != 0 }

func MaskOf(types ...Type) Mask {
	var m Mask
	for _, t := range types {
		m |= 1 << t
	}
	return m
}

var MaskAny = MaskOf(
	TypeGroup, TypeTask, TypeMutex, TypeObject, TypeReal, TypeReg,
	TypeParam, TypeWire, TypeBool, TypeTime, TypeEvent, TypeString, TypeInt,
)

// MaskVariable is every non-structural, value-bearing type (spec §6.1's
// "any-variable-type" for del_var).
var MaskVariable = MaskOf(
	TypeReal, TypeReg, TypeParam, TypeWire, TypeBool, TypeTime, TypeEvent, TypeString, TypeInt,
)

func (t Type) String() string {
	switch t {
	case TypeGroup:
		return "group"
	case TypeTask:
		return "task"
	case TypeMutex:
		return "mutex"
	case TypeObject:
		return "object"
	case TypeReal:
		return "real"
	case TypeReg:
		return "reg"
	case TypeParam:
		return "param"
	case TypeWire:
		return "wire"
	case TypeBool:
		return "bool"
	case TypeTime:
		return "time"
	case TypeEvent:
		return "event"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	default:
		return "unknown"
	}
}

// Status is the run-state of a task/object/mutex (spec §3.2).
type Status uint8

const (
	StatusInit Status = iota
	StatusReady
	StatusPreempt
	StatusWait
	StatusRun
)

// Value holds the current value of a variable-type Object. Only one of the
// fields is meaningful, chosen by the owning Object's Type. Str is kept
// allocated across delete/resurrect cycles so replay after pagination or a
// VCD dump resume does not need to reallocate (spec §3.2 invariant 4, §9).
type Value struct {
	Num   float64
	Str   string
	IsSet bool
}

// Object is one trace-visible entity: a task, mutex, generic object,
// variable, event or group (spec §3.2).
type Object struct {
	Type         Type
	Name         string
	sanitizedKey string

	SourceID int
	LocalID  record.ID

	Global   bool
	GlobalID record.ID

	Parent   *Object
	children []*Object

	Quantification uint32 // bit width for sized variables; 0 otherwise
	Status         Status
	Value          Value

	Zombie bool

	// Label is a stable, injective identity string used by emitters in
	// place of a raw pointer address (spec §4.7.2 allows any injective
	// mapping); assigned once when the Object is first allocated and never
	// given to another Object. A resurrected zombie keeps its Label.
	Label string
}

// SanitizedKey returns Name with whitespace mapped to '_' (spec §3.2),
// computed lazily and cached since it is requested repeatedly by the VCD
// emitter for scope/identifier text.
func (o *Object) SanitizedKey() string {
	if o.sanitizedKey == "" {
		o.sanitizedKey = strings.Map(func(r rune) rune {
			if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
				return '_'
			}
			return r
		}, o.Name)
	}
	return o.sanitizedKey
}

// Children returns the ordered list of child Objects (group Objects only).
func (o *Object) Children() []*Object { return o.children }
