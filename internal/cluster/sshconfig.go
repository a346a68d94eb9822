package cluster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrKeyLoad is wrapped by NewSSHConfigMap when a group's private key
// file cannot be read or parsed. Key problems surface at build time,
// before any process is launched.
var ErrKeyLoad = errors.New("load ssh key")

// GroupConfig is the raw, user-supplied SSH configuration for a group
// of hosts, as it appears in the resource spec file.
type GroupConfig struct {
	Username  string            `yaml:"username"`
	Port      int               `yaml:"port"`
	Venv      string            `yaml:"venv"`
	KeyFile   string            `yaml:"key_file"`
	SharedEnv map[string]string `yaml:"shared_envs"`
}

// SSHConfig is the resolved per-host transport configuration: what
// the SSH transport needs to reach a host and what environment the
// processes launched there inherit. Built once, never mutated.
type SSHConfig struct {
	Username string
	Port     int
	Venv     string
	KeyFile  string
	Signer   ssh.Signer
	Env      map[string]string
}

// SSHConfigMap resolves a host to its transport configuration. Hosts
// whose group was unknown at build time have no entry; remote
// operations against them fail at first use.
type SSHConfigMap map[string]*SSHConfig

// NewSSHConfigMap builds the host→config registry through the
// two-level indirection host → group → config.
//
// Per group: the private key (if any) is loaded and parsed from the
// user-expanded path, and the environment is assembled as a fixed
// baseline overlaid with the group's shared env. A shared entry with
// the same name as a baseline entry wins.
//
// Per host: the group named in nodeGroups is looked up; an unknown
// group stores no entry rather than failing here.
func NewSSHConfigMap(groups map[string]GroupConfig, nodeGroups map[string]string) (SSHConfigMap, error) {
	resolved := make(map[string]*SSHConfig, len(groups))
	for name, g := range groups {
		conf, err := newSSHConfig(g)
		if err != nil {
			return nil, fmt.Errorf("ssh group %q: %w", name, err)
		}
		resolved[name] = conf
	}

	m := make(SSHConfigMap, len(nodeGroups))
	for host, group := range nodeGroups {
		if conf, ok := resolved[group]; ok {
			m[host] = conf
		}
	}
	return m, nil
}

func newSSHConfig(g GroupConfig) (*SSHConfig, error) {
	port := g.Port
	if port == 0 {
		port = 22
	}

	signer, err := loadSigner(g.KeyFile)
	if err != nil {
		return nil, err
	}

	env := map[string]string{
		// Keep the native gRPC runtime of the workers quiet.
		"GRPC_GO_LOG_SEVERITY_LEVEL": "error",
		EnvPatch:                     os.Getenv(EnvPatch),
	}
	for k, v := range g.SharedEnv {
		env[k] = v
	}

	return &SSHConfig{
		Username: g.Username,
		Port:     port,
		Venv:     g.Venv,
		KeyFile:  g.KeyFile,
		Signer:   signer,
		Env:      env,
	}, nil
}

// loadSigner reads and parses the private key at path. An empty path
// means no key-based auth was configured and yields a nil signer.
func loadSigner(path string) (ssh.Signer, error) {
	if path == "" {
		return nil, nil
	}
	expanded, err := expandUser(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrKeyLoad, path, err)
	}
	pem, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrKeyLoad, path, err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrKeyLoad, path, err)
	}
	return signer, nil
}

// expandUser resolves a leading "~" against the current user's home
// directory and absolutizes the result.
func expandUser(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
