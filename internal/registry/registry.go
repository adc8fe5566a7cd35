package registry

import (
	"errors"
	"sync"

	"github.com/titglob/rtsv/internal/record"
)

var (
	// ErrDuplicateIdentifier is returned by Create when (source_id, local_id)
	// already resolves to a live Object (spec §7).
	ErrDuplicateIdentifier = errors.New("registry: duplicate identifier")
	// ErrNotFound is returned when a reference does not resolve to any
	// live Object (spec §7, BadReference).
	ErrNotFound = errors.New("registry: reference does not resolve")
	// ErrBadType is returned when a reference resolves but the Object's
	// type is not in the expected mask (spec §7, BadType).
	ErrBadType = errors.New("registry: object has unexpected type")
)

type sourceLocalKey struct {
	source int
	local  record.ID
}

type zombieKey struct {
	source int
	name   string
	typ    Type
	parent *Object
}

// Registry is the typed directory of live and zombie Objects, organized as
// a tree of groups rooted at an implicit root group (spec §3.2, §4.4). The
// zero value is not usable; use New.
type Registry struct {
	mu sync.RWMutex

	root *Object

	live    map[sourceLocalKey]*Object
	zombies map[zombieKey][]*Object
	global  map[record.ID]*Object

	nextLabel uint64
}

// New creates a Registry with its implicit root group.
func New() *Registry {
	return &Registry{
		root:    &Object{Type: TypeGroup, Name: ""},
		live:    make(map[sourceLocalKey]*Object),
		zombies: make(map[zombieKey][]*Object),
		global:  make(map[record.ID]*Object),
	}
}

// Root returns the implicit root group Object.
func (r *Registry) Root() *Object { return r.root }

func (r *Registry) newLabel() string {
	r.nextLabel++
	return labelAlphabet(r.nextLabel)
}

// labelAlphabet turns n into a short, stable, injective base-26 label
// (a, b, ..., z, aa, ab, ...) usable directly as a LaTeX macro argument or
// VCD identifier, standing in for the "memory address string" the original
// implementation used (spec §4.7.2 allows any injective mapping).
func labelAlphabet(n uint64) string {
	if n == 0 {
		return "a"
	}
	const base = 26
	buf := make([]byte, 0, 8)
	for n > 0 {
		n--
		buf = append(buf, byte('a'+n%base))
		n /= base
	}
	// reverse in place
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// Find resolves (source_id, local_id) to a live Object. If not found and
// allowGlobal is set, it falls back to a live Object whose GlobalID equals
// local_id, regardless of which source declared it (spec §4.4).
func (r *Registry) Find(sourceID int, localID record.ID, allowGlobal bool) *Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if o, ok := r.live[sourceLocalKey{sourceID, localID}]; ok {
		return o
	}
	if allowGlobal {
		if o, ok := r.global[localID]; ok {
			return o
		}
	}
	return nil
}

// FindReusable returns a zombie Object declared by sourceID with the given
// name/type/parent, or nil (spec §4.4).
func (r *Registry) FindReusable(sourceID int, name string, typ Type, parent *Object) *Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.zombies[zombieKey{sourceID, name, typ, parent}]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// Create declares a new Object identified by (sourceID, localID). If a
// zombie matching (sourceID, name, typ, parent) exists it is resurrected in
// place (preserving its identity and heap-owned value storage); otherwise a
// fresh Object is allocated. Returns ErrDuplicateIdentifier if (sourceID,
// localID) already resolves to a live Object.
func (r *Registry) Create(sourceID int, localID record.ID, typ Type, parent *Object, name string) (*Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sourceLocalKey{sourceID, localID}
	if _, exists := r.live[key]; exists {
		return nil, ErrDuplicateIdentifier
	}

	zkey := zombieKey{sourceID, name, typ, parent}
	if list := r.zombies[zkey]; len(list) > 0 {
		obj := list[len(list)-1]
		r.zombies[zkey] = list[:len(list)-1]

		obj.Status = StatusInit
		obj.Zombie = false
		obj.Global = false
		obj.GlobalID = 0
		obj.SourceID = sourceID
		obj.LocalID = localID
		// obj.Value is intentionally left untouched: it is replayed on
		// redraw/dump-resume (spec §3.2 invariant 4).

		r.live[key] = obj
		return obj, nil
	}

	obj := &Object{
		Type:     typ,
		Name:     name,
		SourceID: sourceID,
		LocalID:  localID,
		Parent:   parent,
		Status:   StatusInit,
		Label:    r.newLabel(),
	}
	if parent != nil {
		parent.children = append(parent.children, obj)
	}
	r.live[key] = obj
	return obj, nil
}

// Delete marks the live Object at (sourceID, localID) as a zombie. The
// Object's heap-owned value storage and tree position are left untouched so
// it can later be resurrected by Create, or is swept at end-of-run (spec §5).
func (r *Registry) Delete(sourceID int, localID record.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sourceLocalKey{sourceID, localID}
	obj, ok := r.live[key]
	if !ok {
		return ErrNotFound
	}

	delete(r.live, key)
	obj.Zombie = true
	if obj.Global {
		delete(r.global, obj.GlobalID)
	}

	zkey := zombieKey{sourceID, obj.Name, obj.Type, obj.Parent}
	r.zombies[zkey] = append(r.zombies[zkey], obj)
	return nil
}

// SetGlobal marks obj as globally addressable under gid (spec §4.4).
func (r *Registry) SetGlobal(obj *Object, gid record.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj.Global = true
	obj.GlobalID = gid
	r.global[gid] = obj
}

// Walk performs a depth-first preorder traversal of the group tree starting
// at the root, invoking visit once on entering each Object (exit=false) and
// once after its children are done (exit=true), mirroring the original
// for_each_object iterator (spec §4.4). visit returns true to stop the
// traversal early; Walk then returns true.
func (r *Registry) Walk(visit func(o *Object, exit bool) (stop bool)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return walk(r.root, visit)
}

func walk(o *Object, visit func(o *Object, exit bool) (stop bool)) bool {
	if visit(o, false) {
		return true
	}
	for _, c := range o.children {
		if walk(c, visit) {
			return true
		}
	}
	return visit(o, true)
}
