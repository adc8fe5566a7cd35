package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndFind(t *testing.T) {
	r := New()

	obj, err := r.Create(1, 0x10, TypeTask, r.Root(), "T1")
	require.NoError(t, err)
	require.NotNil(t, obj)

	t.Run("live lookup resolves", func(t *testing.T) {
		got := r.Find(1, 0x10, false)
		assert.Same(t, obj, got)
	})

	t.Run("duplicate identifier rejected", func(t *testing.T) {
		_, err := r.Create(1, 0x10, TypeTask, r.Root(), "T1-again")
		assert.ErrorIs(t, err, ErrDuplicateIdentifier)
	})

	t.Run("unknown id does not resolve", func(t *testing.T) {
		assert.Nil(t, r.Find(1, 0x99, false))
	})
}

// TestZombieReuse is scenario S5: declaring an Object with the same
// (source, name, type, parent) as an existing zombie yields the same
// server-side identity and resets its status to init.
func TestZombieReuse(t *testing.T) {
	r := New()

	first, err := r.Create(1, 0x10, TypeTask, r.Root(), "Worker")
	require.NoError(t, err)
	first.Status = StatusRun

	require.NoError(t, r.Delete(1, 0x10))
	assert.True(t, first.Zombie)
	assert.Nil(t, r.Find(1, 0x10, false), "zombie must not resolve via Find")

	second, err := r.Create(1, 0x10, TypeTask, r.Root(), "Worker")
	require.NoError(t, err)

	assert.Same(t, first, second, "resurrection must reuse the same identity")
	assert.False(t, second.Zombie)
	assert.Equal(t, StatusInit, second.Status)
	assert.Equal(t, first.Label, second.Label)
}

func TestZombieReuseRequiresExactMatch(t *testing.T) {
	r := New()

	obj, err := r.Create(1, 0x10, TypeTask, r.Root(), "Worker")
	require.NoError(t, err)
	require.NoError(t, r.Delete(1, 0x10))

	t.Run("different name does not reuse", func(t *testing.T) {
		other, err := r.Create(1, 0x11, TypeTask, r.Root(), "OtherWorker")
		require.NoError(t, err)
		assert.NotSame(t, obj, other)
	})

	t.Run("different type does not reuse", func(t *testing.T) {
		obj2, err := r.Create(2, 0x20, TypeTask, r.Root(), "Worker2")
		require.NoError(t, err)
		require.NoError(t, r.Delete(2, 0x20))

		other, err := r.Create(2, 0x21, TypeMutex, r.Root(), "Worker2")
		require.NoError(t, err)
		assert.NotSame(t, obj2, other)
	})
}

func TestSetGlobalCrossSourceLookup(t *testing.T) {
	r := New()

	obj, err := r.Create(1, 0x10, TypeTask, r.Root(), "T1")
	require.NoError(t, err)
	r.SetGlobal(obj, 0xABCD)

	t.Run("resolves from another source when allowed", func(t *testing.T) {
		got := r.Find(2, 0xABCD, true)
		assert.Same(t, obj, got)
	})

	t.Run("does not resolve without allowGlobal", func(t *testing.T) {
		assert.Nil(t, r.Find(2, 0xABCD, false))
	})
}

func TestWalkPreorderWithEnterExit(t *testing.T) {
	r := New()

	grp, err := r.Create(1, 1, TypeGroup, r.Root(), "g")
	require.NoError(t, err)
	_, err = r.Create(1, 2, TypeTask, grp, "t1")
	require.NoError(t, err)

	type event struct {
		name string
		exit bool
	}
	var events []event
	r.Walk(func(o *Object, exit bool) bool {
		events = append(events, event{o.Name, exit})
		return false
	})

	require.Len(t, events, 6) // root enter/exit, g enter/exit, t1 enter/exit
	assert.Equal(t, "", events[0].name)
	assert.False(t, events[0].exit)
	assert.Equal(t, "g", events[1].name)
	assert.Equal(t, "t1", events[2].name)
	assert.Equal(t, "t1", events[3].name)
	assert.True(t, events[3].exit)
	assert.Equal(t, "g", events[4].name)
	assert.True(t, events[4].exit)
	assert.Equal(t, "", events[len(events)-1].name)
}

func TestDeleteUnknownIsNotFound(t *testing.T) {
	r := New()
	err := r.Delete(1, 0x10)
	assert.ErrorIs(t, err, ErrNotFound)
}
