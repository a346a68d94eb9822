// Package main implements muster, the operator CLI that launches and
// tears down a worker fleet from a resource description file.
//
// Commands:
//
//	muster up -f resources.yaml    launch the fleet, block, terminate on signal
//	muster topology -f resources.yaml   print the derived topology
//
// Both commands derive the cluster view the same way every node does:
// deterministically, from the resource spec alone.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dreamware/muster/internal/cluster"
)

var rootCmd = &cobra.Command{
	Use:           "muster",
	Short:         "Launch and tear down a distributed worker fleet",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(upCmd, topologyCmd)
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}

// newLogger builds the CLI logger. MUSTER_MIN_LOG_LEVEL narrows it
// the same way it narrows the workers'.
func newLogger() *zap.Logger {
	conf := zap.NewDevelopmentConfig()
	if lvl, err := zapcore.ParseLevel(os.Getenv(cluster.EnvMinLogLevel)); err == nil {
		conf.Level = zap.NewAtomicLevelAt(lvl)
	}
	log, err := conf.Build()
	if err != nil {
		panic(err)
	}
	return log
}
