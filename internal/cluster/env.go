package cluster

// Environment contract between the manager and every process it
// touches: its own (role override, dry-run) and the ones it spawns
// (log level, patch flag).
const (
	// EnvWorker designates this process as a specific worker address.
	// Unset on the chief; the outer launcher sets it in a worker's
	// environment so identical code resolves a different local
	// identity per node.
	EnvWorker = "MUSTER_WORKER"

	// EnvMinLogLevel is injected into every spawned process, local or
	// remote.
	EnvMinLogLevel = "MUSTER_MIN_LOG_LEVEL"

	// EnvPatch is the patch-behavior flag propagated into the baseline
	// env of every resolved SSH config.
	EnvPatch = "MUSTER_PATCH"

	// EnvDebugRemote, when set non-empty, makes the SSH transport skip
	// real execution and return no handle. Lets orchestration logic be
	// exercised without live infrastructure.
	EnvDebugRemote = "MUSTER_DEBUG_REMOTE"
)

const (
	// DefaultWorkingDir is where the topology file lands and where
	// remote starter artifacts are pushed.
	DefaultWorkingDir = "/tmp/muster"

	// SpecFileName is the topology file every worker reads at startup.
	SpecFileName = "cluster_spec.json"
)
