package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendAndReceive(t *testing.T) {
	s := New[int](2, nil)
	defer s.Close()

	assert.True(t, s.Send(1))
	assert.True(t, s.Send(2))

	assert.Equal(t, 1, <-s.C())
	assert.Equal(t, 2, <-s.C())
}

func TestSendDropsOldestWhenFull(t *testing.T) {
	s := New[int](1, nil)
	defer s.Close()

	s.Send(1)
	s.Send(2)
	s.Send(3)

	assert.Equal(t, 3, <-s.C())
}

func TestCloseIsIdempotent(t *testing.T) {
	calls := 0
	s := New[string](1, func() { calls++ })

	s.Close()
	s.Close()

	assert.Equal(t, 1, calls)
	assert.True(t, s.Closed())
	assert.False(t, s.Send("late"))

	_, ok := <-s.C()
	assert.False(t, ok)

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel must be closed")
	}
}
