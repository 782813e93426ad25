package relay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"editmesh/internal/transport"
)

func TestRegisterAssignsUniqueIdentities(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, _ := transport.Pipe()
		ep := r.Register(s)
		require.False(t, seen[ep.Identity])
		seen[ep.Identity] = true
		require.True(t, strings.HasPrefix(ep.Identity, "endpoint-"))
	}
	require.Equal(t, 100, r.Len())
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var want []string
	for i := 0; i < 5; i++ {
		s, _ := transport.Pipe()
		want = append(want, r.Register(s).Identity)
	}
	got := r.List()
	require.Len(t, got, 5)
	for i, ep := range got {
		require.Equal(t, want[i], ep.Identity)
	}
}

func TestRemoveIdentityNeverReused(t *testing.T) {
	r := NewRegistry()
	s1, _ := transport.Pipe()
	ep := r.Register(s1)

	require.True(t, r.Remove(ep.Identity))
	require.False(t, r.Remove(ep.Identity))
	_, ok := r.Get(ep.Identity)
	require.False(t, ok)

	s2, _ := transport.Pipe()
	next := r.Register(s2)
	require.NotEqual(t, ep.Identity, next.Identity)
}
