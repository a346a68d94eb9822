package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// ErrNoSSHConfig is returned by remote operations against a host the
// registry has no entry for. This is the deferred failure for hosts
// whose group was unknown at build time.
var ErrNoSSHConfig = errors.New("no ssh config for host")

// SSHTransport implements Transport over per-call SSH connections.
//
// Every operation dials a fresh authenticated connection; there is no
// pooling. Calls happen at fleet startup only, so the extra latency
// buys the simplicity of having no connection state to manage.
type SSHTransport struct {
	conf   SSHConfigMap
	log    *zap.Logger
	dryRun bool
}

// NewSSHTransport builds a transport over the resolved host configs.
// A nil logger is replaced with a nop logger. Dry-run mode is read
// from MUSTER_DEBUG_REMOTE at construction.
func NewSSHTransport(conf SSHConfigMap, log *zap.Logger) *SSHTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &SSHTransport{
		conf:   conf,
		log:    log,
		dryRun: os.Getenv(EnvDebugRemote) != "",
	}
}

func (t *SSHTransport) config(host string) (*SSHConfig, error) {
	conf, ok := t.conf[host]
	if !ok || conf == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoSSHConfig, host)
	}
	return conf, nil
}

// dial opens an authenticated connection to host. Host keys are not
// verified: the mismatch is logged as a warning and the connection
// proceeds, matching the fleet's provisioning model where hosts come
// and go faster than known_hosts files follow.
func (t *SSHTransport) dial(ctx context.Context, host string, conf *SSHConfig) (*ssh.Client, error) {
	var auth []ssh.AuthMethod
	if conf.Signer != nil {
		auth = append(auth, ssh.PublicKeys(conf.Signer))
	}

	clientConf := &ssh.ClientConfig{
		User: conf.Username,
		Auth: auth,
		HostKeyCallback: func(hostname string, _ net.Addr, key ssh.PublicKey) error {
			t.log.Warn("host key not verified",
				zap.String("host", hostname),
				zap.String("fingerprint", ssh.FingerprintSHA256(key)))
			return nil
		},
	}

	addr := net.JoinHostPort(host, strconv.Itoa(conf.Port))
	netConn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientConf)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// remoteCommand assembles the single shell command Exec runs: venv
// activation first, then environment assignments in sorted key order
// (reproducible command lines), then the argument list. The whole
// thing is handed to a remote "bash -c" single-quoted, so the login
// shell on the far side delivers it verbatim.
func remoteCommand(conf *SSHConfig, args []string) string {
	var parts []string
	if conf.Venv != "" {
		parts = append(parts, conf.Venv+";")
	}
	keys := make([]string, 0, len(conf.Env))
	for k := range conf.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+conf.Env[k])
	}
	parts = append(parts, args...)
	return "bash -c " + shellQuote(strings.Join(parts, " "))
}

// shellQuote single-quotes s for a POSIX shell, escaping embedded
// single quotes with the '\'' dance.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Exec runs args on host inside a pty so the remote process is torn
// down with the session. Returns a nil handle in dry-run mode.
func (t *SSHTransport) Exec(ctx context.Context, args []string, host string) (Handle, error) {
	conf, err := t.config(host)
	if err != nil {
		return nil, err
	}
	cmd := remoteCommand(conf, args)
	t.log.Debug("remote exec", zap.String("host", host), zap.String("cmd", cmd))

	if t.dryRun {
		return nil, nil
	}

	client, err := t.dial(ctx, host, conf)
	if err != nil {
		return nil, err
	}
	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("session %s: %w", host, err)
	}
	// The pty ties the remote process group to the session: closing
	// the session hangs up the pty and the process goes with it.
	modes := ssh.TerminalModes{ssh.ECHO: 0}
	if err := sess.RequestPty("xterm", 40, 80, modes); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("request pty %s: %w", host, err)
	}
	if err := sess.Start(cmd); err != nil {
		sess.Close()
		client.Close()
		return nil, fmt.Errorf("start on %s: %w", host, err)
	}
	return &sshHandle{client: client, sess: sess}, nil
}

// WriteFile writes data to remotePath over a fresh SFTP channel. The
// channel and connection are released on every exit path.
func (t *SSHTransport) WriteFile(ctx context.Context, remotePath string, data []byte, host string) error {
	conf, err := t.config(host)
	if err != nil {
		return err
	}
	client, err := t.dial(ctx, host, conf)
	if err != nil {
		return err
	}
	defer client.Close()

	ftp, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp %s: %w", host, err)
	}
	defer ftp.Close()

	f, err := ftp.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create %s on %s: %w", remotePath, host, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s on %s: %w", remotePath, host, err)
	}
	return nil
}

// CopyFile copies localPath into remoteDir on host, preserving the
// base name and marking the result executable (the copied artifact is
// the worker starter). The target directory is created first over a
// command session.
func (t *SSHTransport) CopyFile(ctx context.Context, localPath, remoteDir string, host string) error {
	conf, err := t.config(host)
	if err != nil {
		return err
	}
	client, err := t.dial(ctx, host, conf)
	if err != nil {
		return err
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("session %s: %w", host, err)
	}
	err = sess.Run("mkdir -p " + remoteDir)
	sess.Close()
	if err != nil {
		return fmt.Errorf("mkdir %s on %s: %w", remoteDir, host, err)
	}

	ftp, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp %s: %w", host, err)
	}
	defer ftp.Close()

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	remotePath := filepath.Join(remoteDir, filepath.Base(localPath))
	dst, err := ftp.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create %s on %s: %w", remotePath, host, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy %s to %s: %w", localPath, host, err)
	}
	if err := ftp.Chmod(remotePath, 0o755); err != nil {
		return fmt.Errorf("chmod %s on %s: %w", remotePath, host, err)
	}
	return nil
}

// sshHandle is the remote counterpart of localHandle: the session's
// pty stands in for the process group.
type sshHandle struct {
	client *ssh.Client
	sess   *ssh.Session
	once   sync.Once
}

// Terminate signals the remote process and tears the session down.
// The pty hangup reaches the process even when the signal request is
// not honored by the server. Safe to call more than once.
func (h *sshHandle) Terminate() error {
	h.once.Do(func() {
		_ = h.sess.Signal(ssh.SIGTERM)
		_ = h.sess.Close()
		_ = h.client.Close()
	})
	return nil
}

func (h *sshHandle) Wait() error {
	err := h.sess.Wait()
	_ = h.sess.Close()
	_ = h.client.Close()
	return err
}
