// Package netaddr classifies node addresses for the cluster manager,
// deciding whether a target is reached by a local process spawn or a
// remote transport.
//
// # Overview
//
// Every entry in a cluster topology is an "address" or "address:port"
// string. Before launching a worker there, the manager needs to know:
//
//   - Is this the loopback interface? (IsLoopback)
//   - Is this any interface on the current machine? (IsLocal)
//
// IsLocal answers against the interfaces bound right now: the
// interface table is enumerated on every call rather than cached,
// because interfaces can appear and disappear between calls.
//
// # Address forms
//
// Parse accepts the forms the topology produces:
//
//	10.0.0.1          bare IPv4
//	10.0.0.1:2222     IPv4 with port
//	::1               bare IPv6
//	[::1]:2222        bracketed IPv6 with port
//	localhost         alias for 127.0.0.1
//	localhost:2222    alias with port
//
// The port suffix is split off only when it cannot be part of the
// host itself, so bare IPv6 literals survive untouched.
package netaddr
