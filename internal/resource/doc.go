// Package resource parses the resource description file: the single
// input every node receives, and the only thing the cluster's shared
// view is derived from.
//
// A resource spec is YAML:
//
//	nodes:
//	  - address: 10.0.0.1
//	    chief: true
//	    gpus: [0, 1]
//	  - address: 10.0.0.2
//	    ssh_config: group-a
//	ssh:
//	  group-a:
//	    username: ubuntu
//	    key_file: ~/.ssh/id_rsa
//	    venv: source /opt/venv/bin/activate
//	    shared_envs:
//	      NCCL_DEBUG: WARN
//
// Exactly one node is the chief (a single-node spec is implicitly
// chief). GPU lists are carried through for the computation runtime
// but not interpreted here.
package resource
