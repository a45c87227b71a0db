package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rosflow-network/rosflow/pkg/audit"
	"github.com/rosflow-network/rosflow/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the workflow audit trail",
	Long: `View the audit trail of workflow outcomes.

Every command run through the engine is logged with:
  - Timestamp and user
  - Device and command
  - Risk tier and final status
  - Transaction id for safe-mode runs

Examples:
  rosflow audit list --device edge-r1
  rosflow audit list --last 24h
  rosflow audit list --failures`,
}

var (
	auditDevice   string
	auditUser     string
	auditStatus   string
	auditTier     string
	auditLast     string
	auditLimit    int
	auditFailures bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if inv.Engine.AuditLog == "" {
			return fmt.Errorf("audit logging is not configured: set engine.audit_log in the inventory")
		}

		logger, err := audit.NewFileLogger(inv.Engine.AuditLog, audit.RotationConfig{})
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer logger.Close()

		filter := audit.Filter{
			Device:      auditDevice,
			User:        auditUser,
			Status:      auditStatus,
			RiskTier:    auditTier,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}
		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := logger.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "DEVICE", "TIER", "STATUS", "COMMAND")
		for _, event := range events {
			status := cli.Status(event.Status)
			if event.DryRun {
				status = cli.Yellow("dry-run")
			}
			t.Row(
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.User,
				event.Device,
				cli.Tier(event.RiskTier),
				status,
				event.Command,
			)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditStatus, "status", "", "Filter by status (SUCCESS, FAILED, ROLLED_BACK, REJECTED)")
	auditListCmd.Flags().StringVar(&auditTier, "tier", "", "Filter by risk tier (LOW, MEDIUM, HIGH)")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only non-SUCCESS outcomes")

	auditCmd.AddCommand(auditListCmd)
}
