package resource

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/muster/internal/cluster"
)

// Node is one machine participating in the computation.
type Node struct {
	// Address is an IP, optionally reachable over SSH. Must be unique
	// within the spec.
	Address string `yaml:"address"`

	// Chief marks the coordinating node. Exactly one node carries it;
	// in a single-node spec it may be omitted.
	Chief bool `yaml:"chief"`

	// SSHConfig names the ssh group used to reach this node. Empty for
	// nodes never reached remotely (typically the chief itself).
	SSHConfig string `yaml:"ssh_config"`

	// GPUs lists the device indices the runtime may use on this node.
	// Carried through untouched.
	GPUs []int `yaml:"gpus"`
}

// Spec is a parsed and validated resource description.
type Spec struct {
	Nodes []Node                         `yaml:"nodes"`
	SSH   map[string]cluster.GroupConfig `yaml:"ssh"`
}

// Load reads and parses the resource spec at path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resource spec: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a resource spec.
func Parse(data []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse resource spec: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid resource spec: %w", err)
	}
	return &s, nil
}

func (s *Spec) validate() error {
	if len(s.Nodes) == 0 {
		return errors.New("no nodes")
	}

	seen := make(map[string]bool, len(s.Nodes))
	chiefs := 0
	for _, n := range s.Nodes {
		if n.Address == "" {
			return errors.New("node with empty address")
		}
		if seen[n.Address] {
			return fmt.Errorf("duplicate node address %q", n.Address)
		}
		seen[n.Address] = true
		if n.Chief {
			chiefs++
		}
		// A node naming an unknown ssh group is not rejected here: the
		// registry stores no entry for it and remote use fails at
		// first contact.
	}

	switch {
	case chiefs == 1:
	case chiefs == 0 && len(s.Nodes) == 1:
		// A single node is implicitly the chief.
	default:
		return fmt.Errorf("exactly one chief required, found %d", chiefs)
	}
	return nil
}

// Addresses returns every node address, in spec order. The topology
// builder sorts; order here carries no meaning.
func (s *Spec) Addresses() []string {
	out := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		out = append(out, n.Address)
	}
	return out
}

// Chief returns the chief's address.
func (s *Spec) Chief() string {
	for _, n := range s.Nodes {
		if n.Chief {
			return n.Address
		}
	}
	return s.Nodes[0].Address
}

// NodeGroups maps each node address to its ssh group name, skipping
// nodes that have none.
func (s *Spec) NodeGroups() map[string]string {
	m := make(map[string]string)
	for _, n := range s.Nodes {
		if n.SSHConfig != "" {
			m[n.Address] = n.SSHConfig
		}
	}
	return m
}

// SSHGroups returns the raw group configs for the registry builder.
func (s *Spec) SSHGroups() map[string]cluster.GroupConfig {
	return s.SSH
}
