// Package classify maps each command Kind to the rendering backends it
// affects and the operand validation/registry effects it requires (spec
// §4.3, §4.4). It is the single source of truth the dispatcher consults
// before ever touching an emitter, so the classifier table becomes a pure
// function from kind to (class, operand spec, effect) as suggested by
// spec §9's "Control flow" design note.
package classify

import (
	"fmt"
	"strings"

	"github.com/titglob/rtsv/internal/record"
	"github.com/titglob/rtsv/internal/registry"
)

// Effect is what a command does to the object an operand refers to.
type Effect uint8

const (
	EffectNone Effect = iota
	EffectCheck
	EffectCreate
	EffectDelete
)

// Operand describes the expected type mask and effect for one of a
// command's three possible operand slots (group, id1, id2).
type Operand struct {
	Mask   registry.Mask
	Effect Effect
}

var noop = Operand{}

func chk(types ...registry.Type) Operand {
	return Operand{Mask: registry.MaskOf(types...), Effect: EffectCheck}
}

func newOf(t registry.Type) Operand {
	return Operand{Mask: registry.MaskOf(t), Effect: EffectCreate}
}

func del(mask registry.Mask) Operand {
	return Operand{Mask: mask, Effect: EffectDelete}
}

// Rule is one row of the classifier table (spec §4.3, §6.1).
type Rule struct {
	Class record.Class
	Group Operand
	ID1   Operand
	ID2   Operand
}

var taskOrObject = registry.MaskOf(registry.TypeTask, registry.TypeObject)
var taskObjectMutex = registry.MaskOf(registry.TypeTask, registry.TypeObject, registry.TypeMutex)

// table is the exhaustive, closed classifier table (~50 entries per spec
// §4.3), built directly from the original get_cmd_syntax/classify_cmd
// switch statements and spec.md §6.1's enumeration.
var table = map[record.Kind]Rule{
	record.KindDeclTask:   {Class: record.ClassMSC | record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeTask)},
	record.KindDeclMutex:  {Class: record.ClassMSC | record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeMutex)},
	record.KindDeclObject: {Class: record.ClassMSC | record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeObject)},

	record.KindDeclBool:   {Class: record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeBool)},
	record.KindDeclWire:   {Class: record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeWire)},
	record.KindDeclInt:    {Class: record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeInt)},
	record.KindDeclReal:   {Class: record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeReal)},
	record.KindDeclString: {Class: record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeString)},
	record.KindDeclEvent:  {Class: record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeEvent)},
	record.KindDeclTime:   {Class: record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeTime)},
	record.KindDeclParam:  {Class: record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeParam)},
	record.KindDeclReg:    {Class: record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeReg)},

	record.KindCreateGroup: {Class: record.ClassMSC | record.ClassVCD, Group: chk(registry.TypeGroup), ID1: newOf(registry.TypeGroup)},
	record.KindDelGroup:    {Class: record.ClassMSC | record.ClassVCD, ID1: del(registry.MaskOf(registry.TypeGroup))},

	record.KindCreateTask:  {Class: record.ClassMSC | record.ClassVCD, Group: chk(registry.TypeGroup), ID1: chk(registry.TypeTask, registry.TypeObject), ID2: newOf(registry.TypeTask)},
	record.KindCreateMutex: {Class: record.ClassMSC | record.ClassVCD, Group: chk(registry.TypeGroup), ID1: chk(registry.TypeTask, registry.TypeObject), ID2: newOf(registry.TypeMutex)},
	record.KindCreateObj:   {Class: record.ClassMSC | record.ClassVCD, Group: chk(registry.TypeGroup), ID1: chk(registry.TypeTask, registry.TypeObject), ID2: newOf(registry.TypeObject)},

	record.KindDelTask:  {Class: record.ClassMSC | record.ClassVCD, ID1: chk(registry.TypeTask, registry.TypeObject), ID2: del(registry.MaskOf(registry.TypeTask))},
	record.KindDelMutex: {Class: record.ClassMSC | record.ClassVCD, ID1: chk(registry.TypeTask, registry.TypeObject), ID2: del(registry.MaskOf(registry.TypeMutex))},
	record.KindDelObj:   {Class: record.ClassMSC | record.ClassVCD, ID1: chk(registry.TypeTask, registry.TypeObject), ID2: del(registry.MaskOf(registry.TypeObject))},

	record.KindSendMsg: {Class: record.ClassMSC, ID1: chk(registry.TypeTask), ID2: chk(registry.TypeTask)},
	record.KindRecvMsg: {Class: record.ClassMSC, ID1: chk(registry.TypeTask), ID2: chk(registry.TypeTask)},
	record.KindCall:    {Class: record.ClassMSC, ID1: chk(registry.TypeTask, registry.TypeObject), ID2: chk(registry.TypeTask, registry.TypeObject)},
	record.KindReturn:  {Class: record.ClassMSC, ID1: Operand{Mask: taskObjectMutex, Effect: EffectCheck}, ID2: chk(registry.TypeTask, registry.TypeObject)},
	record.KindTake:    {Class: record.ClassMSC, ID1: chk(registry.TypeTask, registry.TypeObject), ID2: chk(registry.TypeMutex)},
	record.KindGive:    {Class: record.ClassMSC, ID1: chk(registry.TypeTask, registry.TypeObject), ID2: chk(registry.TypeMutex)},
	record.KindAcquire: {Class: record.ClassMSC | record.ClassVCD, ID1: chk(registry.TypeMutex), ID2: chk(registry.TypeTask, registry.TypeObject)},

	record.KindReady:   {Class: record.ClassMSC | record.ClassVCD, ID1: Operand{Mask: taskObjectMutex, Effect: EffectCheck}},
	record.KindRun:     {Class: record.ClassMSC | record.ClassVCD, ID1: Operand{Mask: taskObjectMutex, Effect: EffectCheck}},
	record.KindPreempt: {Class: record.ClassMSC | record.ClassVCD, ID1: Operand{Mask: taskObjectMutex, Effect: EffectCheck}},
	record.KindWait:    {Class: record.ClassMSC | record.ClassVCD, ID1: Operand{Mask: taskObjectMutex, Effect: EffectCheck}},
	record.KindSwitch:  {Class: record.ClassMSC | record.ClassVCD, ID1: chk(registry.TypeTask), ID2: chk(registry.TypeTask)},

	record.KindComment:   {Class: record.ClassMSC, ID1: Operand{Mask: taskObjectMutex, Effect: EffectCheck}},
	record.KindAction:    {Class: record.ClassMSC, ID1: Operand{Mask: taskObjectMutex, Effect: EffectCheck}},
	record.KindSetTimer:  {Class: record.ClassMSC, ID1: Operand{Mask: taskObjectMutex, Effect: EffectCheck}},
	record.KindTimeout:   {Class: record.ClassMSC, ID1: Operand{Mask: taskObjectMutex, Effect: EffectCheck}},
	record.KindStopTimer: {Class: record.ClassMSC, ID1: Operand{Mask: taskObjectMutex, Effect: EffectCheck}},

	record.KindSetState: {Class: record.ClassMSC | record.ClassVCD, ID1: chk(registry.TypeTask, registry.TypeObject)},

	record.KindSetInt:    {Class: record.ClassVCD, ID1: chk(registry.TypeInt)},
	record.KindSetReal:   {Class: record.ClassVCD, ID1: chk(registry.TypeReal)},
	record.KindSetBool:   {Class: record.ClassVCD, ID1: chk(registry.TypeBool)},
	record.KindSetWire:   {Class: record.ClassVCD, ID1: chk(registry.TypeWire)},
	record.KindSetParam:  {Class: record.ClassVCD, ID1: chk(registry.TypeParam)},
	record.KindSetReg:    {Class: record.ClassVCD, ID1: chk(registry.TypeReg)},
	record.KindSetEvent:  {Class: record.ClassVCD, ID1: chk(registry.TypeEvent)},
	record.KindSetTime:   {Class: record.ClassVCD, ID1: chk(registry.TypeTime)},
	record.KindSetString: {Class: record.ClassVCD, ID1: chk(registry.TypeString)},
	record.KindSetGlobal: {Class: record.ClassMSC | record.ClassVCD, ID1: Operand{Mask: registry.MaskAny, Effect: EffectCheck}},

	record.KindDelVar: {Class: record.ClassVCD, ID1: del(registry.MaskVariable)},

	record.KindStartDump: {Class: record.ClassMSC | record.ClassVCD},
	record.KindStopDump:  {Class: record.ClassMSC | record.ClassVCD},
}

// Lookup returns the Rule for kind and whether one exists.
func Lookup(kind record.Kind) (Rule, bool) {
	rule, ok := table[kind]
	return rule, ok
}

// Resolved carries the Objects a Record's operands resolved to, for use by
// the emitters invoked after classification succeeds.
type Resolved struct {
	Rule  Rule
	Group *registry.Object
	Obj1  *registry.Object
	Obj2  *registry.Object
}

// Process validates rec's operand references against reg per its Rule and
// applies the rule's registry side effects (create/delete), returning the
// resolved Objects for the emitters. No emitter is ever invoked before this
// succeeds, so a rejected Record leaves reg untouched (spec §7).
func Process(reg *registry.Registry, rec *record.Record) (*Resolved, error) {
	rule, ok := Lookup(rec.Cmd)
	if !ok {
		return nil, fmt.Errorf("classify: no rule for command %s", rec.Cmd)
	}
	rec.Class = rule.Class

	res := &Resolved{Rule: rule}

	var err error
	if res.Group, err = resolveGroup(reg, rec, rule.Group); err != nil {
		return nil, err
	}

	// id1/id2 creation effects need the name text; id1 creations never
	// depend on id2 (no command creates two new objects at once) so it is
	// safe to resolve id1 before id2.
	if res.Obj1, err = resolveOperand(reg, rec, rule.ID1, rec.ID1, res.Group, nameFor(rec)); err != nil {
		return nil, err
	}
	if res.Obj2, err = resolveOperand(reg, rec, rule.ID2, rec.ID2, res.Group, nameFor(rec)); err != nil {
		return nil, err
	}

	if rec.Cmd == record.KindSetGlobal {
		reg.SetGlobal(res.Obj1, rec.ID2)
	}

	return res, nil
}

func resolveGroup(reg *registry.Registry, rec *record.Record, op Operand) (*registry.Object, error) {
	if op.Effect == EffectNone {
		return nil, nil
	}
	// group_id 0 is never assigned by create_group (its ids start from the
	// first declared group), so it stands for the implicit root group a
	// declaration with no "#group_id" token falls back to (spec §3.2, §6.1).
	if rec.GroupID == 0 {
		return reg.Root(), nil
	}
	obj := reg.Find(rec.SourceID, rec.GroupID, false)
	if obj == nil {
		return nil, fmt.Errorf("%w: group %d", ErrBadReference, rec.GroupID)
	}
	if !op.Mask.Has(obj.Type) {
		return nil, fmt.Errorf("%w: group %d has type %s", ErrBadType, rec.GroupID, obj.Type)
	}
	return obj, nil
}

func resolveOperand(reg *registry.Registry, rec *record.Record, op Operand, id record.ID, parent *registry.Object, name string) (*registry.Object, error) {
	switch op.Effect {
	case EffectNone:
		return nil, nil

	case EffectCreate:
		if existing := reg.Find(rec.SourceID, id, false); existing != nil {
			return nil, fmt.Errorf("%w: id %d", registry.ErrDuplicateIdentifier, id)
		}
		typ := soleType(op.Mask)
		obj, err := reg.Create(rec.SourceID, id, typ, parent, name)
		if err != nil {
			return nil, err
		}
		return obj, nil

	case EffectCheck, EffectDelete:
		obj := reg.Find(rec.SourceID, id, true)
		if obj == nil {
			return nil, fmt.Errorf("%w: id %d", ErrBadReference, id)
		}
		if !op.Mask.Has(obj.Type) {
			return nil, fmt.Errorf("%w: id %d has type %s", ErrBadType, id, obj.Type)
		}
		if op.Effect == EffectDelete {
			if err := reg.Delete(rec.SourceID, id); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}
	return nil, nil
}

// soleType returns the single Type bit set in mask, for operands where the
// rule table only ever sets exactly one "new" type.
func soleType(mask registry.Mask) registry.Type {
	for t := registry.TypeGroup; t <= registry.TypeInt; t++ {
		if mask.Has(t) {
			return t
		}
	}
	return registry.TypeGroup
}

// nameFor extracts the declared name from a Record's text field. decl_object
// and create_obj carry "<type-tag> <name>" (spec §6.1); every other
// declaration/creation kind carries the name as the whole text field.
func nameFor(rec *record.Record) string {
	switch rec.Cmd {
	case record.KindDeclObject, record.KindCreateObj:
		fields := strings.Fields(rec.Text)
		if len(fields) >= 2 {
			return fields[1]
		}
		if len(fields) == 1 {
			return fields[0]
		}
		return ""
	default:
		return rec.Text
	}
}
