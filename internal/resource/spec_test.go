package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/muster/internal/cluster"
)

const sampleSpec = `
nodes:
  - address: 10.0.0.1
    chief: true
    gpus: [0, 1]
  - address: 10.0.0.2
    ssh_config: group-a
  - address: 10.0.0.3
    ssh_config: group-a
ssh:
  group-a:
    username: ubuntu
    port: 2222
    key_file: ~/.ssh/id_rsa
    venv: source /opt/venv/bin/activate
    shared_envs:
      NCCL_DEBUG: WARN
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleSpec))
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, s.Addresses())
	assert.Equal(t, "10.0.0.1", s.Chief())
	assert.Equal(t, []int{0, 1}, s.Nodes[0].GPUs)

	assert.Equal(t, map[string]string{
		"10.0.0.2": "group-a",
		"10.0.0.3": "group-a",
	}, s.NodeGroups(), "chief has no ssh group and is skipped")

	groups := s.SSHGroups()
	require.Contains(t, groups, "group-a")
	assert.Equal(t, cluster.GroupConfig{
		Username:  "ubuntu",
		Port:      2222,
		KeyFile:   "~/.ssh/id_rsa",
		Venv:      "source /opt/venv/bin/activate",
		SharedEnv: map[string]string{"NCCL_DEBUG": "WARN"},
	}, groups["group-a"])
}

func TestParseSingleNodeImplicitChief(t *testing.T) {
	s, err := Parse([]byte("nodes:\n  - address: 127.0.0.1\n"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", s.Chief())
}

func TestParseUnknownGroupIsDeferred(t *testing.T) {
	// Referencing a group the ssh section does not define is not a
	// parse error; the registry resolves it to no entry.
	s, err := Parse([]byte(`
nodes:
  - address: 10.0.0.1
    chief: true
  - address: 10.0.0.2
    ssh_config: ghost
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"10.0.0.2": "ghost"}, s.NodeGroups())
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no nodes", "nodes: []"},
		{"empty address", "nodes:\n  - chief: true"},
		{"duplicate address", "nodes:\n  - address: 10.0.0.1\n    chief: true\n  - address: 10.0.0.1"},
		{"no chief among several", "nodes:\n  - address: 10.0.0.1\n  - address: 10.0.0.2"},
		{"two chiefs", "nodes:\n  - address: 10.0.0.1\n    chief: true\n  - address: 10.0.0.2\n    chief: true"},
		{"not yaml", "nodes: {{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/resources.yaml")
	assert.Error(t, err)
}
