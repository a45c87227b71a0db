package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rosflow-network/rosflow/pkg/cli"
	"github.com/rosflow-network/rosflow/pkg/engine"
)

var batchApprove bool

// batchFile is the on-disk YAML shape for a batch run.
type batchFile struct {
	Commands []engine.BatchItem `yaml:"commands"`
}

var batchCmd = &cobra.Command{
	Use:   "batch <file.yaml>",
	Short: "Run a batch of commands across devices",
	Long: `Run a batch of commands across devices with bounded parallelism.
Commands for the same device run in order on one session; distinct devices
run in parallel up to the configured worker count.

Batch file format:

  commands:
    - device: edge-r1
      command: /ip address print
    - device: edge-r2
      command: /ip pool add name=lan ranges=10.0.0.10-10.0.0.250

Exit code is 0 only when every command succeeds.

Examples:
  rosflow batch changes.yaml --approve`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading batch file: %w", err)
		}
		var batch batchFile
		if err := yaml.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("parsing batch file: %w", err)
		}
		if len(batch.Commands) == 0 {
			return fmt.Errorf("batch file %s has no commands", args[0])
		}
		for i, item := range batch.Commands {
			if item.Device == "" || item.Command == "" {
				return fmt.Errorf("batch item %d: device and command are required", i+1)
			}
			if _, err := inv.Device(item.Device); err != nil {
				return fmt.Errorf("batch item %d: %w", i+1, err)
			}
		}

		o, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer o.Close()

		results := o.RunBatch(context.Background(), batch.Commands, batchApprove)

		if jsonOutput {
			json.NewEncoder(os.Stdout).Encode(results)
		} else {
			printBatchResults(results)
		}

		if !engine.BatchOK(results) {
			exitCode = exitFailed
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchApprove, "approve", false, "Approve MEDIUM/HIGH-risk execution")
}

func printBatchResults(results []engine.BatchResult) {
	succeeded := 0
	for _, r := range results {
		fmt.Printf("%s %s [%s] %s (%s)\n",
			cli.DotPad(r.Item.Device, 24),
			cli.Status(string(r.Result.Status)),
			cli.Tier(r.Result.TierStr),
			r.Item.Command,
			r.Result.Elapsed.Round(time.Millisecond),
		)
		if r.Result.OK() {
			succeeded++
		} else if r.Result.Message != "" {
			fmt.Printf("  %s\n", cli.Dim(r.Result.Message))
		}
	}

	summary := fmt.Sprintf("%d/%d succeeded", succeeded, len(results))
	if succeeded == len(results) {
		fmt.Println(cli.Green(summary))
	} else {
		fmt.Println(cli.Red(summary))
	}
}
