package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rosflow-network/rosflow/pkg/cli"
	"github.com/rosflow-network/rosflow/pkg/engine"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <command>",
	Short: "Print a command's risk tier without executing it",
	Long: `Print the risk tier the workflow would assign to a command. Purely
local: no device connection, no inventory needed.

Examples:
  rosflow classify "/ip firewall filter print"   # LOW
  rosflow classify "/ip pool add name=lan"       # MEDIUM
  rosflow classify "/system reboot"              # HIGH`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tier := engine.NewClassifier().Classify(args[0])
		fmt.Println(cli.Tier(tier.String()))
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <command>",
	Short: "Show what a command would do, without executing it",
	Long: `Render the dry-run preview for a command: its risk tier, the
safeguards that would apply, and a description of the action. Purely local.

Examples:
  rosflow -d edge-r1 preview "/ip address add address=10.0.0.1/24 interface=ether1"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		device := deviceName
		if device == "" {
			device = "(no device)"
		}
		tier := engine.NewClassifier().Classify(args[0])
		fmt.Println(engine.Preview(device, args[0], tier))
	},
}
