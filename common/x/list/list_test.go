package list

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	t.Parallel()
	var l List[string]
	require.True(t, l.IsEmpty())
	l.PushBack("a")
	l.PushBack("b")
	l.PushFront("z")
	require.Equal(t, []string{"z", "a", "b"}, l.Array())
	require.Equal(t, "z", l.PopFront())
	require.Equal(t, "b", l.PopBack())
	require.Equal(t, 1, l.Len())
	require.Equal(t, "a", l.PopFront())
	require.Equal(t, "", l.PopFront())
	require.True(t, l.IsEmpty())
}

func TestRemoveAfter(t *testing.T) {
	t.Parallel()
	var l List[int]
	first := l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)
	l.RemoveAfter(first)
	require.Equal(t, []int{1}, l.Array())
	l.RemoveAfter(nil)
	require.True(t, l.IsEmpty())
	require.Nil(t, l.Front())
}

func TestRemove(t *testing.T) {
	t.Parallel()
	l := New[int]()
	l.PushBack(1)
	middle := l.PushBack(2)
	l.PushBack(3)
	require.Equal(t, 2, l.Remove(middle))
	require.Equal(t, []int{1, 3}, l.Array())
	require.Equal(t, 3, l.Front().Next().Value)
	require.Nil(t, l.Back().Next())
}
