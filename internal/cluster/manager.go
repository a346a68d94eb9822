package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/dreamware/muster/internal/netaddr"
)

var (
	// ErrTaskNotFound reports an unknown (job, task index) pair.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoLocalTask reports that no topology entry matches the local
	// address.
	ErrNoLocalTask = errors.New("no local task found")
)

// staleSweepFormat is the kill-by-keyword pipeline run on every host
// before launch; %s is the starter process keyword. The awk guard
// keeps the pipeline from matching itself through its awk stage.
const staleSweepFormat = `ps aux | awk '!/awk/ && /%s/ {print $2}' | xargs -r kill -9`

// DefaultStarterName is the worker-starter binary the manager spawns
// on every node, and the keyword the stale sweep matches.
const DefaultStarterName = "muster-worker"

// Manager owns the cluster: topology, chief identity, transport
// configuration, and every process handle created during Start.
//
// A Manager is driven by a single control goroutine; the one
// exception is the shutdown hook, whose goroutine may call Terminate
// while Start is still recording handles, so the handle list is the
// sole piece of guarded shared state. Readiness and supervision of
// the launched workers belong to the collaborator that consumes the
// session.
type Manager struct {
	topo          Topology
	chief         string
	fullAddresses []string
	addrToPort    map[string]string
	taskToAddr    map[taskID]string

	conf        SSHConfigMap
	transport   Transport
	workingDir  string
	starterPath string
	log         *zap.Logger

	// mu guards handles: the control goroutine appends during Start
	// while the shutdown hook's goroutine may be terminating them.
	mu       sync.Mutex
	handles  []Handle
	hookOnce sync.Once
}

type taskID struct {
	job   string
	index int
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithTransport sets the remote transport. Defaults to an SSH
// transport over the manager's config map.
func WithTransport(t Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithWorkingDir sets the directory for the topology file and remote
// starter artifacts. Defaults to DefaultWorkingDir.
func WithWorkingDir(dir string) Option {
	return func(m *Manager) { m.workingDir = dir }
}

// WithStarter sets the local path of the worker-starter executable.
// Its base name doubles as the stale-sweep keyword. Defaults to
// DefaultStarterName resolved through PATH.
func WithStarter(path string) Option {
	return func(m *Manager) { m.starterPath = path }
}

// NewManager builds a manager for the given topology and chief.
//
// The topology and config map are built once by the caller and never
// mutated afterwards; the manager only adds process handles as Start
// walks the topology.
func NewManager(topo Topology, chief string, conf SSHConfigMap, opts ...Option) (*Manager, error) {
	m := &Manager{
		topo:        topo,
		chief:       chief,
		conf:        conf,
		workingDir:  DefaultWorkingDir,
		starterPath: DefaultStarterName,
		log:         zap.NewNop(),
	}

	m.fullAddresses = topo.Addresses()
	m.addrToPort = make(map[string]string, len(m.fullAddresses))
	m.taskToAddr = make(map[taskID]string)
	for _, job := range topo.Jobs() {
		for i, full := range topo[job] {
			host, port := splitHostPort(full)
			m.addrToPort[host] = port
			m.taskToAddr[taskID{job: job, index: i}] = host
		}
	}

	if chief == "" {
		return nil, errors.New("cluster: chief address is required")
	}
	if _, ok := m.addrToPort[chief]; !ok {
		return nil, fmt.Errorf("cluster: chief %q is not part of the topology", chief)
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.transport == nil {
		m.transport = NewSSHTransport(conf, m.log)
	}

	m.log.Info("cluster topology derived",
		zap.Any("topology", topo),
		zap.String("chief", chief))
	return m, nil
}

// IsChief reports whether address is the chief. An empty address
// means the local address.
func (m *Manager) IsChief(address string) bool {
	if address == "" {
		address = m.LocalAddress()
	}
	return address == m.chief
}

// LocalAddress resolves this process's own cluster identity: the
// MUSTER_WORKER override when the environment designates this process
// as a specific worker, the chief address otherwise. Identical code
// runs on every node; only this resolution differs.
func (m *Manager) LocalAddress() string {
	if addr := os.Getenv(EnvWorker); addr != "" {
		return addr
	}
	return m.chief
}

// AddressForTask returns the host for (job, taskIndex), or
// ErrTaskNotFound.
func (m *Manager) AddressForTask(job string, taskIndex int) (string, error) {
	addr, ok := m.taskToAddr[taskID{job: job, index: taskIndex}]
	if !ok {
		return "", fmt.Errorf("%w: job %q task %d", ErrTaskNotFound, job, taskIndex)
	}
	return addr, nil
}

// LocalTaskIndex returns the first index in the flattened address
// list whose entry contains the local address. The substring match
// tolerates the host:port form of the entries.
func (m *Manager) LocalTaskIndex() (int, error) {
	local := m.LocalAddress()
	for i, full := range m.fullAddresses {
		if strings.Contains(full, local) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrNoLocalTask, local)
}

// LocalSessionTarget composes the connection endpoint for the session
// runtime on this node, from the port assigned to the local address.
// ErrNoLocalTask when the local address holds no topology port.
func (m *Manager) LocalSessionTarget() (string, error) {
	local := m.LocalAddress()
	port, ok := m.addrToPort[local]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoLocalTask, local)
	}
	return "grpc://localhost:" + port, nil
}

// Handles returns the process handles recorded so far, in launch
// order.
func (m *Manager) Handles() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.handles)
}

// recordHandle appends a handle under the lock, so a signal arriving
// mid-Start sees either the handle or the state before the spawn,
// never a torn slice.
func (m *Manager) recordHandle(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles = append(m.handles, h)
}

// Start launches the fleet across the topology.
//
// The shutdown hook is registered before the first launch attempt, so
// a failure halfway still triggers best-effort cleanup of whatever
// already started. On the chief, a stale-process sweep then kills
// leftovers of a prior incomplete run on every host and is waited on
// in full; no launch begins until cleanup finished everywhere.
//
// Each topology entry is classified: local addresses and the chief
// get a local spawn, everything else goes through the transport. A
// handle is recorded the moment it exists, before any later fallible
// step, so a mid-loop failure never leaves an untracked live process.
// There is no retry; the caller converges a partially started cluster
// by calling Terminate.
func (m *Manager) Start(ctx context.Context) error {
	m.registerShutdownHook()

	if m.IsChief("") {
		m.sweepStaleWorkers(ctx)
	}

	// Every spawned process, local or remote, gets the log-level
	// floor and the patch flag on its command line; remote processes
	// additionally inherit their group's env from the SSH config.
	launchEnv := []string{
		EnvMinLogLevel + "=error",
		EnvPatch + "=" + os.Getenv(EnvPatch),
	}

	for _, job := range m.topo.Jobs() {
		for i, full := range m.topo[job] {
			host, _ := splitHostPort(full)
			args := []string{
				fmt.Sprintf("--job_name=%s", job),
				fmt.Sprintf("--task_index=%d", i),
				fmt.Sprintf("--working_dir=%s", m.workingDir),
			}

			local, err := netaddr.IsLocal(host)
			if err != nil {
				return err
			}
			if local || m.IsChief(host) {
				if err := m.launchLocal(launchEnv, args, job, i, full); err != nil {
					return err
				}
			} else {
				if err := m.launchRemote(ctx, host, launchEnv, args, job, i); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *Manager) launchLocal(env, args []string, job string, taskIndex int, full string) error {
	if err := m.writeLocalSpec(); err != nil {
		return err
	}

	cmd := append(append(append(make([]string, 0, len(env)+1+len(args)), env...), m.starterPath), args...)
	h, err := spawnLocal(cmd)
	if err != nil {
		return fmt.Errorf("spawn local worker %s/%d: %w", job, taskIndex, err)
	}
	// Recorded immediately: any failure after this line must still
	// find the process in the handle list.
	m.recordHandle(h)

	m.log.Debug("local worker started",
		zap.String("address", full),
		zap.String("job", job),
		zap.Int("task_index", taskIndex))
	return nil
}

func (m *Manager) launchRemote(ctx context.Context, host string, env, args []string, job string, taskIndex int) error {
	data, err := m.topo.JSON()
	if err != nil {
		return err
	}

	m.log.Info("copying starter artifacts", zap.String("host", host))
	if err := m.transport.CopyFile(ctx, m.starterPath, m.workingDir, host); err != nil {
		return fmt.Errorf("copy starter to %s: %w", host, err)
	}
	specPath := filepath.Join(m.workingDir, SpecFileName)
	if err := m.transport.WriteFile(ctx, specPath, data, host); err != nil {
		return fmt.Errorf("write cluster spec to %s: %w", host, err)
	}

	remoteStarter := filepath.Join(m.workingDir, filepath.Base(m.starterPath))
	cmd := append(append(append(make([]string, 0, len(env)+1+len(args)), env...), remoteStarter), args...)

	m.log.Info("launching worker",
		zap.String("host", host),
		zap.String("job", job),
		zap.Int("task_index", taskIndex))
	h, err := m.transport.Exec(ctx, cmd, host)
	if err != nil {
		return fmt.Errorf("launch worker on %s: %w", host, err)
	}
	if h != nil { // nil handle: transport ran in dry-run mode
		m.recordHandle(h)
	}
	return nil
}

// writeLocalSpec persists the topology into the working directory for
// the starter about to run on this machine.
func (m *Manager) writeLocalSpec() error {
	data, err := m.topo.JSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.workingDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.workingDir, SpecFileName), data, 0o644)
}

// sweepStaleWorkers kills leftover starter processes from a prior
// incomplete run on every known host, then waits for every sweep to
// finish. Failures are deliberately not surfaced: the sweep is
// best-effort and a dead host will fail loudly at launch anyway.
func (m *Manager) sweepStaleWorkers(ctx context.Context) {
	keyword := filepath.Base(m.starterPath)
	kill := fmt.Sprintf(staleSweepFormat, keyword)

	hosts := make([]string, 0, len(m.addrToPort))
	for host := range m.addrToPort {
		hosts = append(hosts, host)
	}
	slices.Sort(hosts)

	var sweeps []Handle
	for _, host := range hosts {
		m.log.Info("cleaning stale worker processes", zap.String("host", host))
		var (
			h   Handle
			err error
		)
		if m.IsChief(host) {
			h, err = spawnLocal([]string{kill})
		} else {
			h, err = m.transport.Exec(ctx, []string{kill}, host)
		}
		if err != nil {
			m.log.Debug("stale sweep failed", zap.String("host", host), zap.Error(err))
			continue
		}
		if h != nil {
			sweeps = append(sweeps, h)
		}
	}

	// Barrier: the sweeps must not race the launches that follow.
	waitAll(sweeps)
}

// Terminate signals every recorded process group. One handle failing
// to terminate does not stop the rest; the failures come back joined.
// Safe to call repeatedly; signaling already-exited processes is not
// an error.
func (m *Manager) Terminate() error {
	handles := m.Handles()
	m.log.Info("terminating cluster", zap.Int("handles", len(handles)))

	var errs []error
	for _, h := range handles {
		if h == nil {
			continue
		}
		if err := h.Terminate(); err != nil {
			m.log.Warn("terminate handle", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// registerShutdownHook installs the process-wide cleanup exactly once:
// on SIGINT/SIGTERM the fleet is terminated and the signal re-raised
// with its default disposition, so the process still dies with the
// right status. Normal-exit cleanup is the caller's deferred
// Terminate.
func (m *Manager) registerShutdownHook() {
	m.hookOnce.Do(func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-c
			m.log.Info("signal received, terminating cluster",
				zap.String("signal", sig.String()))
			_ = m.Terminate()
			signal.Stop(c)
			if s, ok := sig.(syscall.Signal); ok {
				signal.Reset(s)
				_ = syscall.Kill(os.Getpid(), s)
			}
		}()
	})
}
