package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgl-project/ome-mtl/pkg/constants"
	"github.com/sgl-project/ome-mtl/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:           constants.AgentName,
	Short:         "Resolve multi-task training plans",
	Long:          "MTL Agent turns a multi-task problem string into a training plan: checkpoint layout, data info, sampling weights and step schedule.",
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(CreateAgentCommand(NewPlanAgent()))
	rootCmd.AddCommand(CreateAgentCommand(NewUpdateStepsAgent()))
	rootCmd.AddCommand(CreateAgentCommand(NewInspectAgent()))
	rootCmd.AddCommand(CreateAgentCommand(NewServeAgent()))
}
