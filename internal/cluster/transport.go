package cluster

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// Transport is the capability set the manager needs against a remote
// host. SSHTransport is the shipped implementation; anything that can
// run a command, write a file, and copy a file can stand in (an
// agent-based transport, a test fake) without the manager changing.
type Transport interface {
	// Exec runs args as a single shell command on host and returns a
	// handle for later termination. A nil handle with a nil error
	// means the transport intentionally did not start anything
	// (dry-run mode).
	Exec(ctx context.Context, args []string, host string) (Handle, error)

	// WriteFile writes data to remotePath on host.
	WriteFile(ctx context.Context, remotePath string, data []byte, host string) error

	// CopyFile copies the local file at localPath into remoteDir on
	// host, preserving the base name.
	CopyFile(ctx context.Context, localPath, remoteDir string, host string) error
}

// Handle is an opaque reference to a launched process or remote
// session: just enough identity to signal it as a group and to block
// until it finishes.
//
// Terminate is idempotent; signaling something already gone is not an
// error.
type Handle interface {
	Terminate() error
	Wait() error
}

// localHandle wraps a locally spawned process group.
type localHandle struct {
	cmd *exec.Cmd
}

// spawnLocal starts args as a single "bash -c" command in a new
// process group, so Terminate reaches the starter's descendants too.
func spawnLocal(args []string) (Handle, error) {
	cmd := exec.Command("bash", "-c", strings.Join(args, " "))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &localHandle{cmd: cmd}, nil
}

// Terminate sends SIGTERM to the whole process group. A group that
// already exited (ESRCH) is success: terminating twice must not fail.
func (h *localHandle) Terminate() error {
	pgid := h.cmd.Process.Pid // Setpgid makes the child its own group leader
	err := syscall.Kill(-pgid, syscall.SIGTERM)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func (h *localHandle) Wait() error {
	return h.cmd.Wait()
}

// waitAll blocks until every handle has finished, discarding exit
// status. Used as the barrier after the stale-process sweep.
func waitAll(handles []Handle) {
	var wg sync.WaitGroup
	for _, h := range handles {
		if h == nil {
			continue
		}
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()
			_ = h.Wait()
		}(h)
	}
	wg.Wait()
}
