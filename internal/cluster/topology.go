package cluster

import (
	"encoding/json"
	"fmt"
	"slices"
)

// JobWorker is the single job group emitted by BuildTopology. The
// chief is not a separate job: it is whichever worker entry matches
// the chief address.
const JobWorker = "worker"

// Default port assignment for BuildTopology callers that have no
// reason to care: semi-arbitrary range, consecutive ports.
const (
	DefaultBasePort = 15000
	DefaultPortStep = 1
)

// Topology maps a job name to its ordered list of "host:port"
// entries. Task index i of a job is entry i of its list.
//
// A Topology is never mutated after construction. Two processes that
// build it from the same node set get byte-identical results, which
// is what lets every node agree on the cluster layout without a
// coordinator to broadcast it.
type Topology map[string][]string

// BuildTopology derives the cluster topology from an unordered set of
// node addresses.
//
// Nodes are sorted lexicographically and assigned
// basePort + i*portStep in sorted order. The port counter is local to
// the call: a shared or global counter would make the result depend
// on call history and break cross-process agreement.
//
// Pure function: same input set, same output, regardless of input
// order, call order, or process.
func BuildTopology(nodes []string, basePort, portStep int) Topology {
	sorted := slices.Clone(nodes)
	slices.Sort(sorted)

	workers := make([]string, 0, len(sorted))
	for i, node := range sorted {
		workers = append(workers, fmt.Sprintf("%s:%d", node, basePort+i*portStep))
	}
	return Topology{JobWorker: workers}
}

// Jobs returns the job names in sorted order, so iteration over a
// topology is as deterministic as the topology itself.
func (t Topology) Jobs() []string {
	jobs := make([]string, 0, len(t))
	for job := range t {
		jobs = append(jobs, job)
	}
	slices.Sort(jobs)
	return jobs
}

// Addresses returns the flattened "host:port" list, jobs in sorted
// order, tasks in index order.
func (t Topology) Addresses() []string {
	var out []string
	for _, job := range t.Jobs() {
		out = append(out, t[job]...)
	}
	return out
}

// JSON serializes the topology for the cluster spec file every worker
// reads at startup. encoding/json sorts map keys, so the bytes are
// identical on every node.
func (t Topology) JSON() ([]byte, error) {
	return json.Marshal(t)
}

// splitHostPort separates a topology entry into its host and port
// halves. Entries are produced by BuildTopology, so the port suffix
// is always present; the split is on the last colon to keep bracketed
// IPv6 hosts intact.
func splitHostPort(full string) (host, port string) {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == ':' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}
