package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcherOnOff(t *testing.T) {
	d := NewDispatcher()
	var got []string
	sub := d.On("e", func(p []byte) { got = append(got, string(p)) })
	d.Dispatch("e", []byte("one"))
	d.Off(sub)
	d.Dispatch("e", []byte("two"))
	require.Equal(t, []string{"one"}, got)
}

func TestDispatcherOffIsIdempotent(t *testing.T) {
	d := NewDispatcher()
	sub := d.On("e", func([]byte) {})
	d.Off(sub)
	d.Off(sub)
	require.Equal(t, 0, d.ListenerCount("e"))
}

func TestDispatcherRemoveAllListeners(t *testing.T) {
	d := NewDispatcher()
	d.On("a", func([]byte) {})
	d.On("a", func([]byte) {})
	d.On("b", func([]byte) {})

	d.RemoveAllListeners("a")
	require.Equal(t, 0, d.ListenerCount("a"))
	require.Equal(t, 1, d.ListenerCount("b"))

	d.RemoveAllListeners("")
	require.Equal(t, 0, d.ListenerCount("b"))
}

func TestDispatcherOrder(t *testing.T) {
	d := NewDispatcher()
	var got []int
	d.On("e", func([]byte) { got = append(got, 1) })
	d.On("e", func([]byte) { got = append(got, 2) })
	d.On("e", func([]byte) { got = append(got, 3) })
	d.Dispatch("e", nil)
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestPipeDeliversToRemote(t *testing.T) {
	a, b := Pipe()
	var got []byte
	b.On("edits.doc", func(p []byte) { got = p })
	require.NoError(t, a.Emit("edits.doc", []byte(`{"data":1}`)))
	require.Equal(t, []byte(`{"data":1}`), got)
}

func TestPipeDoesNotDeliverLocally(t *testing.T) {
	a, _ := Pipe()
	called := false
	a.On("e", func([]byte) { called = true })
	require.NoError(t, a.Emit("e", nil))
	require.False(t, called)
}

func TestPipeDisconnectClosesBothEnds(t *testing.T) {
	a, b := Pipe()
	require.True(t, a.Connected())
	require.NoError(t, a.Disconnect())
	require.True(t, a.Disconnected())
	require.True(t, b.Disconnected())
	require.ErrorIs(t, b.Emit("e", nil), ErrSocketClosed)
	require.NoError(t, a.Disconnect())
}
