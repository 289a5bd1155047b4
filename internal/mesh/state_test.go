package mesh_test

import (
	"testing"

	"github.com/dantte-lp/gomesh/internal/mesh"
)

func TestTryTransitionSelfLoopsAlwaysLegal(t *testing.T) {
	t.Parallel()

	states := []mesh.NodeState{
		mesh.StateInit, mesh.StateDiscovery, mesh.StateEdge,
		mesh.StateClusterheadCandidate, mesh.StateClusterhead, mesh.StateClusterMember,
	}
	for _, s := range states {
		if !mesh.TryTransition(s, s) {
			t.Errorf("self-loop %s -> %s rejected", s, s)
		}
	}
}

func TestTryTransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to mesh.NodeState
		want     bool
	}{
		{mesh.StateInit, mesh.StateDiscovery, true},
		{mesh.StateInit, mesh.StateEdge, false},
		{mesh.StateInit, mesh.StateClusterhead, false},
		{mesh.StateDiscovery, mesh.StateEdge, true},
		{mesh.StateDiscovery, mesh.StateClusterheadCandidate, true},
		{mesh.StateDiscovery, mesh.StateClusterhead, false},
		{mesh.StateDiscovery, mesh.StateClusterMember, false},
		{mesh.StateEdge, mesh.StateClusterheadCandidate, true},
		{mesh.StateEdge, mesh.StateClusterMember, true},
		{mesh.StateEdge, mesh.StateDiscovery, false},
		{mesh.StateClusterheadCandidate, mesh.StateClusterhead, true},
		{mesh.StateClusterheadCandidate, mesh.StateClusterMember, true},
		{mesh.StateClusterheadCandidate, mesh.StateEdge, true},
		{mesh.StateClusterheadCandidate, mesh.StateDiscovery, false},
		{mesh.StateClusterhead, mesh.StateClusterheadCandidate, true},
		{mesh.StateClusterhead, mesh.StateClusterMember, false},
		{mesh.StateClusterhead, mesh.StateEdge, false},
		{mesh.StateClusterMember, mesh.StateClusterheadCandidate, true},
		{mesh.StateClusterMember, mesh.StateEdge, true},
		{mesh.StateClusterMember, mesh.StateClusterhead, false},
	}

	for _, tt := range tests {
		got := mesh.TryTransition(tt.from, tt.to)
		if got != tt.want {
			t.Errorf("TryTransition(%s, %s) = %t, want %t", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNodeStateStringUnknown(t *testing.T) {
	t.Parallel()

	s := mesh.NodeState(200)
	if s.String() != "UnknownState" {
		t.Fatalf("String() = %q, want %q", s.String(), "UnknownState")
	}
}
