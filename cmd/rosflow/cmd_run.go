package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rosflow-network/rosflow/pkg/cli"
	"github.com/rosflow-network/rosflow/pkg/engine"
)

var (
	runApprove bool
	runDryRun  bool
)

var runCmd = &cobra.Command{
	Use:   "run <command>",
	Short: "Run one command through the safety workflow",
	Long: `Run one command on the selected device through the full safety workflow.

The command is risk-classified first:
  LOW    - executes directly
  MEDIUM - requires --approve
  HIGH   - requires --approve and runs inside a safe-mode transaction
           that rolls back automatically if anything fails

Exit codes: 0 SUCCESS, 1 FAILED, 2 REJECTED, 3 ROLLED_BACK.

Examples:
  rosflow -d edge-r1 run "/ip address print"
  rosflow -d edge-r1 run "/ip pool add name=lan ranges=10.0.0.10-10.0.0.250" --approve
  rosflow -d edge-r1 run "/ip route add dst-address=0.0.0.0/0 gateway=10.0.0.254" --approve
  rosflow -d edge-r1 run "/system reboot" --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device, err := requireDevice()
		if err != nil {
			return err
		}

		command := args[0]

		// Explicit dry-run never touches the device, regardless of tier.
		if runDryRun {
			tier := engine.NewClassifier().Classify(command)
			fmt.Println(engine.Preview(device, command, tier))
			return nil
		}

		o, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer o.Close()

		result := o.Execute(context.Background(), device, command, runApprove)
		printResult(device, command, result)
		exitCode = statusExitCode(result.Status)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runApprove, "approve", false, "Approve MEDIUM/HIGH-risk execution")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Preview only, send nothing to the device")
}

// printResult renders one workflow result, as JSON when --json is set.
func printResult(device, command string, result *engine.WorkflowResult) {
	if jsonOutput {
		json.NewEncoder(os.Stdout).Encode(result)
		return
	}

	fmt.Printf("%s %s [%s] %s (%s)\n",
		cli.Status(string(result.Status)),
		device,
		cli.Tier(result.TierStr),
		result.Message,
		result.Elapsed.Round(time.Millisecond),
	)
	if result.TransactionID != "" {
		fmt.Printf("  transaction: %s\n", cli.Dim(result.TransactionID))
	}
	for _, attempted := range result.Attempted {
		fmt.Printf("  attempted:   %s\n", attempted)
	}
	if result.Output != "" {
		fmt.Println(result.Output)
	}
}
