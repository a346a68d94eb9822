package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTopologySortsAndAssignsPorts(t *testing.T) {
	// Input order is deliberately unsorted; output must not care.
	topo := BuildTopology([]string{"10.0.0.2", "10.0.0.1"}, 2222, 1)

	assert.Equal(t, Topology{
		JobWorker: []string{"10.0.0.1:2222", "10.0.0.2:2223"},
	}, topo)
}

func TestBuildTopologyDeterminism(t *testing.T) {
	nodes := []string{"10.0.0.9", "10.0.0.1", "192.168.1.4", "10.0.0.5"}
	permuted := []string{"10.0.0.5", "192.168.1.4", "10.0.0.1", "10.0.0.9"}

	a := BuildTopology(nodes, 15000, 1)
	b := BuildTopology(permuted, 15000, 1)
	assert.Equal(t, a, b, "topology must be a pure function of the node set")

	// Byte-identical serialization is the actual cross-node contract.
	aJSON, err := a.JSON()
	require.NoError(t, err)
	bJSON, err := b.JSON()
	require.NoError(t, err)
	assert.Equal(t, aJSON, bJSON)
}

func TestBuildTopologyPortStep(t *testing.T) {
	topo := BuildTopology([]string{"a1", "a2", "a3"}, 100, 10)
	assert.Equal(t, []string{"a1:100", "a2:110", "a3:120"}, topo[JobWorker])
}

func TestBuildTopologyDoesNotMutateInput(t *testing.T) {
	nodes := []string{"b", "a"}
	BuildTopology(nodes, 2222, 1)
	assert.Equal(t, []string{"b", "a"}, nodes)
}

func TestTopologyAddresses(t *testing.T) {
	topo := Topology{
		"worker": []string{"10.0.0.1:2222", "10.0.0.2:2223"},
		"ps":     []string{"10.0.0.3:2224"},
	}
	// Jobs in sorted order, tasks in index order.
	assert.Equal(t,
		[]string{"10.0.0.3:2224", "10.0.0.1:2222", "10.0.0.2:2223"},
		topo.Addresses())
}

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		full, host, port string
	}{
		{"10.0.0.1:2222", "10.0.0.1", "2222"},
		{"[::1]:2222", "[::1]", "2222"},
		{"bare", "bare", ""},
	}
	for _, tt := range tests {
		host, port := splitHostPort(tt.full)
		assert.Equal(t, tt.host, host)
		assert.Equal(t, tt.port, port)
	}
}
