package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dreamware/muster/internal/cluster"
	"github.com/dreamware/muster/internal/resource"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Print the topology derived from a resource spec",
	Long: `Topology prints the job-to-address mapping every node derives from
the resource spec. Running it on two machines with the same spec must
print byte-identical output; that identity is what the cluster's
agreement rests on.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		spec, err := resource.Load(upFlags.resources)
		if err != nil {
			return err
		}
		topo := cluster.BuildTopology(spec.Addresses(), upFlags.basePort, upFlags.portStep)
		data, err := topo.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
