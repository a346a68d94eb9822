// Package cluster launches and tears down the fleet of worker
// processes for a distributed computation, coordinating roles,
// topology, and process lifecycle without a central coordination
// service.
//
// # Overview
//
// There is no registry, no discovery, and no broadcast. Every node is
// handed the same resource description, derives the same topology
// from it, and therefore agrees with every other node on who runs
// where: agreement by determinism instead of communication. The
// chief node is the only one that actively drives the others, over
// SSH.
//
// # Architecture
//
//	              ┌──────────────────┐
//	              │  Manager (chief) │
//	              │                  │
//	              │ - Topology       │
//	              │ - SSHConfigMap   │
//	              │ - Handles        │
//	              └───────┬──────────┘
//	        local spawn   │   SSH transport
//	      ┌───────────────┼────────────────┐
//	      │               │                │
//	┌─────▼─────┐   ┌─────▼─────┐    ┌─────▼─────┐
//	│ worker /0 │   │ worker /1 │    │ worker /2 │
//	│ (chief's  │   │ 10.0.0.2  │    │ 10.0.0.3  │
//	│  own box) │   │ via ssh   │    │ via ssh   │
//	└───────────┘   └───────────┘    └───────────┘
//
// # Core components
//
// Topology: the deterministic job→ordered-address mapping. Built by
// BuildTopology from the sorted node set and a fixed starting port;
// byte-identical on every node that builds it from the same input.
//
// SSHConfigMap: host→transport-configuration registry, resolved
// through the host→group→config indirection of the resource spec.
// Built once, immutable. Hosts whose group is unknown have no entry
// and fail at first remote use, not at build time.
//
// Transport: the capability set {Exec, WriteFile, CopyFile} the
// manager needs against a remote host. SSHTransport is the shipped
// implementation; tests substitute fakes behind the same interface.
//
// Manager: the orchestrator. Owns the topology, the chief identity,
// and the handles of every process it launched. Start walks the
// topology, classifying each address as local-or-chief (spawn in a
// new process group) or remote (delegate to the transport), recording
// each handle the instant it exists. Terminate signals every recorded
// process group, best-effort and idempotent.
//
// # Lifecycle
//
//  1. Shutdown hook registered (once per process, before any launch).
//  2. Chief only: stale-process sweep on every host, waited on in
//     full before anything launches.
//  3. Topology walk: local spawn or remote push-and-exec per entry.
//  4. Eventually: Terminate, explicitly or from the shutdown hook.
//
// Launches are fire-and-forget; readiness of the workers is the
// session runtime's concern, not this package's. Termination is
// best-effort signal delivery with no confirmation of exit.
//
// # Concurrency model
//
// A single control goroutine drives Start; handles are appended only
// by that goroutine, under a lock, because the shutdown hook's
// goroutine may call Terminate while a launch is mid-flight. Handles
// and Terminate are safe to call concurrently with Start. The only
// other internal fan-out is waiting on sweep commands, which is a
// pure barrier. Parallel launching can be layered on top, provided a
// handle is still recorded before any subsequent fallible step of
// that node's launch.
//
// # Failure semantics
//
//   - Bad key material: fails at registry build, before any launch.
//   - Remote failure mid-launch: surfaces immediately, no retry; the
//     already-recorded handles let the caller converge with
//     Terminate.
//   - Sweep failures: silent best-effort.
//   - Per-handle terminate failures: isolated and joined.
package cluster
