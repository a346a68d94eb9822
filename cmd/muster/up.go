package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamware/muster/internal/cluster"
	"github.com/dreamware/muster/internal/resource"
)

var upFlags struct {
	resources  string
	basePort   int
	portStep   int
	workingDir string
	starter    string
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Launch the worker fleet described by a resource spec",
	Long: `Up derives the cluster topology from the resource spec, starts a
worker on every node (locally on this machine when it is the chief or
the address is local, over SSH otherwise), and then blocks. SIGINT or
SIGTERM terminates every launched process group before the CLI exits.

Run it on the chief: only the chief sweeps stale workers and drives
remote launches.`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringVarP(&upFlags.resources, "resources", "f", "", "resource spec file (required)")
	upCmd.Flags().IntVar(&upFlags.basePort, "base-port", cluster.DefaultBasePort, "first task port")
	upCmd.Flags().IntVar(&upFlags.portStep, "port-step", cluster.DefaultPortStep, "port increment between tasks")
	upCmd.Flags().StringVar(&upFlags.workingDir, "working-dir", cluster.DefaultWorkingDir, "working directory on every node")
	upCmd.Flags().StringVar(&upFlags.starter, "starter", "", "worker starter binary (default: next to this executable)")
	_ = upCmd.MarkFlagRequired("resources")

	topologyCmd.Flags().StringVarP(&upFlags.resources, "resources", "f", "", "resource spec file (required)")
	topologyCmd.Flags().IntVar(&upFlags.basePort, "base-port", cluster.DefaultBasePort, "first task port")
	topologyCmd.Flags().IntVar(&upFlags.portStep, "port-step", cluster.DefaultPortStep, "port increment between tasks")
	_ = topologyCmd.MarkFlagRequired("resources")
}

func runUp(cmd *cobra.Command, _ []string) error {
	log := newLogger()
	defer log.Sync() //nolint:errcheck

	spec, err := resource.Load(upFlags.resources)
	if err != nil {
		return err
	}

	topo := cluster.BuildTopology(spec.Addresses(), upFlags.basePort, upFlags.portStep)
	conf, err := cluster.NewSSHConfigMap(spec.SSHGroups(), spec.NodeGroups())
	if err != nil {
		return err
	}

	starter, err := starterPath()
	if err != nil {
		return err
	}

	mgr, err := cluster.NewManager(topo, spec.Chief(), conf,
		cluster.WithLogger(log),
		cluster.WithWorkingDir(upFlags.workingDir),
		cluster.WithStarter(starter),
	)
	if err != nil {
		return err
	}

	if err := mgr.Start(cmd.Context()); err != nil {
		// Converge whatever did launch before reporting the failure.
		_ = mgr.Terminate()
		return err
	}

	log.Info("fleet running; send SIGINT or SIGTERM to terminate",
		zap.Int("workers", len(mgr.Handles())))

	// The manager's shutdown hook owns termination: on signal it
	// terminates the fleet and re-raises, ending this process.
	select {}
}

// starterPath resolves the worker starter: the explicit flag, or the
// binary sitting next to the muster executable.
func starterPath() (string, error) {
	if upFlags.starter != "" {
		return upFlags.starter, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate starter: %w", err)
	}
	starter := filepath.Join(filepath.Dir(self), cluster.DefaultStarterName)
	if _, err := os.Stat(starter); err != nil {
		return "", fmt.Errorf("starter %s not found (build cmd/muster-worker or pass --starter): %w", starter, err)
	}
	return starter, nil
}
