package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteCommand(t *testing.T) {
	conf := &SSHConfig{
		Venv: "source /opt/venv/bin/activate",
		Env: map[string]string{
			"B_VAR": "2",
			"A_VAR": "1",
		},
	}
	cmd := remoteCommand(conf, []string{"/tmp/muster/muster-worker", "--job_name=worker", "--task_index=0"})

	assert.Equal(t,
		`bash -c 'source /opt/venv/bin/activate; A_VAR=1 B_VAR=2 /tmp/muster/muster-worker --job_name=worker --task_index=0'`,
		cmd, "venv first, env sorted by key, then argv")
}

func TestRemoteCommandWithoutVenv(t *testing.T) {
	conf := &SSHConfig{Env: map[string]string{"K": "v"}}
	assert.Equal(t, `bash -c 'K=v echo hi'`, remoteCommand(conf, []string{"echo", "hi"}))
}

func TestShellQuote(t *testing.T) {
	// The sweep pipeline must arrive verbatim: its single quotes and
	// the awk $2 must survive the remote login shell.
	quoted := shellQuote(`ps aux | awk '!/awk/ && /w/ {print $2}' | xargs -r kill -9`)
	assert.Equal(t,
		`'ps aux | awk '\''!/awk/ && /w/ {print $2}'\'' | xargs -r kill -9'`,
		quoted)
}

func TestExecMissingConfigIsDeferredFailure(t *testing.T) {
	tr := NewSSHTransport(SSHConfigMap{}, nil)

	_, err := tr.Exec(context.Background(), []string{"true"}, "10.9.9.9")
	assert.ErrorIs(t, err, ErrNoSSHConfig)

	err = tr.WriteFile(context.Background(), "/tmp/x", []byte("x"), "10.9.9.9")
	assert.ErrorIs(t, err, ErrNoSSHConfig)

	err = tr.CopyFile(context.Background(), "/tmp/x", "/tmp", "10.9.9.9")
	assert.ErrorIs(t, err, ErrNoSSHConfig)
}

func TestExecDryRunReturnsNoHandle(t *testing.T) {
	t.Setenv(EnvDebugRemote, "1")

	// Dry-run must not dial: an unroutable host with a resolvable
	// config proves Exec short-circuits before the network.
	tr := NewSSHTransport(SSHConfigMap{
		"203.0.113.9": {Username: "u", Port: 22, Env: map[string]string{}},
	}, nil)

	h, err := tr.Exec(context.Background(), []string{"true"}, "203.0.113.9")
	require.NoError(t, err)
	assert.Nil(t, h)
}
