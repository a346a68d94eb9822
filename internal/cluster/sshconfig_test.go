package cluster

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// writeTestKey generates a throwaway ed25519 key and writes it in
// OpenSSH PEM format, returning the path.
func writeTestKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestNewSSHConfigMapResolvesHostThroughGroup(t *testing.T) {
	m, err := NewSSHConfigMap(
		map[string]GroupConfig{
			"A": {Username: "u", Port: 2222},
		},
		map[string]string{"h1": "A"},
	)
	require.NoError(t, err)

	conf, ok := m["h1"]
	require.True(t, ok, "mapped host must resolve")
	assert.Equal(t, "u", conf.Username)
	assert.Equal(t, 2222, conf.Port)

	_, ok = m["h2"]
	assert.False(t, ok, "unmapped host must have no entry")
}

func TestNewSSHConfigMapUnknownGroupStoresNoEntry(t *testing.T) {
	// An unknown group is not a build-time failure; the host simply
	// has no entry and remote use fails later.
	m, err := NewSSHConfigMap(
		map[string]GroupConfig{"A": {Username: "u"}},
		map[string]string{"h1": "A", "h2": "nonexistent"},
	)
	require.NoError(t, err)
	assert.Contains(t, m, "h1")
	assert.NotContains(t, m, "h2")
}

func TestNewSSHConfigMapDefaultPort(t *testing.T) {
	m, err := NewSSHConfigMap(
		map[string]GroupConfig{"A": {Username: "u"}},
		map[string]string{"h1": "A"},
	)
	require.NoError(t, err)
	assert.Equal(t, 22, m["h1"].Port)
}

func TestNewSSHConfigMapLoadsKey(t *testing.T) {
	keyFile := writeTestKey(t)
	m, err := NewSSHConfigMap(
		map[string]GroupConfig{"A": {Username: "u", KeyFile: keyFile}},
		map[string]string{"h1": "A"},
	)
	require.NoError(t, err)
	require.NotNil(t, m["h1"].Signer)
	assert.Equal(t, "ssh-ed25519", m["h1"].Signer.PublicKey().Type())
}

func TestNewSSHConfigMapKeyLoadFailures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewSSHConfigMap(
			map[string]GroupConfig{"A": {KeyFile: filepath.Join(t.TempDir(), "nope")}},
			map[string]string{"h1": "A"},
		)
		assert.ErrorIs(t, err, ErrKeyLoad)
	})

	t.Run("garbage key material", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "id_rsa")
		require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))
		_, err := NewSSHConfigMap(
			map[string]GroupConfig{"A": {KeyFile: path}},
			map[string]string{"h1": "A"},
		)
		assert.ErrorIs(t, err, ErrKeyLoad)
	})
}

func TestNewSSHConfigMapBaselineEnv(t *testing.T) {
	t.Setenv(EnvPatch, "1")
	m, err := NewSSHConfigMap(
		map[string]GroupConfig{"A": {Username: "u"}},
		map[string]string{"h1": "A"},
	)
	require.NoError(t, err)

	env := m["h1"].Env
	assert.Equal(t, "error", env["GRPC_GO_LOG_SEVERITY_LEVEL"])
	assert.Equal(t, "1", env[EnvPatch])
}

func TestNewSSHConfigMapSharedEnvOverridesBaseline(t *testing.T) {
	// User-supplied shared envs may shadow the protected baseline.
	m, err := NewSSHConfigMap(
		map[string]GroupConfig{"A": {
			Username: "u",
			SharedEnv: map[string]string{
				"GRPC_GO_LOG_SEVERITY_LEVEL": "info",
				"NCCL_DEBUG":                 "WARN",
			},
		}},
		map[string]string{"h1": "A"},
	)
	require.NoError(t, err)

	env := m["h1"].Env
	assert.Equal(t, "info", env["GRPC_GO_LOG_SEVERITY_LEVEL"])
	assert.Equal(t, "WARN", env["NCCL_DEBUG"])
}

func TestExpandUser(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandUser("~/.ssh/id_rsa")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ssh", "id_rsa"), got)

	abs, err := expandUser("/etc/key")
	require.NoError(t, err)
	assert.Equal(t, "/etc/key", abs)
}
