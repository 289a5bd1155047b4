package mesh

// This file implements the node state machine (spec §4.2). As with the
// teacher's BFD FSM, it is a pure function over a transition table: no side
// effects, no Engine dependency, trivially testable in isolation.
//
// State diagram (spec §4.2; self-loops allowed everywhere and omitted below):
//
//	Init -> Discovery
//	Discovery -> Edge | ClusterheadCandidate
//	Edge -> ClusterheadCandidate | ClusterMember
//	ClusterheadCandidate -> Clusterhead | ClusterMember | Edge
//	Clusterhead -> ClusterheadCandidate
//	ClusterMember -> ClusterheadCandidate | Edge

// NodeState is one tag per node state (spec §9: "tagged variants... rather
// than inheritance").
type NodeState uint8

const (
	// StateInit is the state before the first Discovery transition.
	StateInit NodeState = iota
	// StateDiscovery is the default steady-state: listening and emitting
	// plain discovery frames.
	StateDiscovery
	// StateEdge is a node that has concluded it is not well-connected
	// enough to contend for clusterhead.
	StateEdge
	// StateClusterheadCandidate is a node contending for clusterhead.
	StateClusterheadCandidate
	// StateClusterhead is an elected coordinator.
	StateClusterhead
	// StateClusterMember is a node that has aligned to a clusterhead.
	StateClusterMember
)

var nodeStateNames = [6]string{
	"Init",
	"Discovery",
	"Edge",
	"ClusterheadCandidate",
	"Clusterhead",
	"ClusterMember",
}

// String returns the human-readable name of the node state.
func (s NodeState) String() string {
	if int(s) < len(nodeStateNames) {
		return nodeStateNames[s]
	}
	return "UnknownState"
}

// stateTransitions is the complete node state transition table. Self-loops
// are implicit (any state may transition to itself) and are checked
// separately in TryTransition rather than enumerated here, matching the
// spec's "self-loops allowed everywhere" note. Unlisted (from, to) pairs are
// rejected.
//
//nolint:gochecknoglobals
var stateTransitions = map[NodeState]map[NodeState]bool{
	StateInit: {
		StateDiscovery: true,
	},
	StateDiscovery: {
		StateEdge:                 true,
		StateClusterheadCandidate: true,
	},
	StateEdge: {
		StateClusterheadCandidate: true,
		StateClusterMember:        true,
	},
	StateClusterheadCandidate: {
		StateClusterhead:   true,
		StateClusterMember: true,
		StateEdge:          true,
	},
	StateClusterhead: {
		StateClusterheadCandidate: true,
	},
	StateClusterMember: {
		StateClusterheadCandidate: true,
		StateEdge:                 true,
	},
}

// TryTransition reports whether moving from current to target is a legal
// transition (a self-loop, or an edge present in stateTransitions). It does
// not mutate anything; callers apply the new state themselves on success.
//
// Per spec §7, invalid transitions are silent no-ops at this layer: the
// caller receives false and must not assume the state changed.
func TryTransition(current, target NodeState) bool {
	if current == target {
		return true
	}
	targets, ok := stateTransitions[current]
	if !ok {
		return false
	}
	return targets[target]
}
