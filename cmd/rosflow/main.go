// Rosflow - Command Safety & Workflow Engine for router CLIs
//
// A CLI tool for running configuration commands on router-class devices with:
//   - Risk classification (LOW / MEDIUM / HIGH) of every command
//   - Approval gating for mutating commands
//   - Safe-mode transactions with automatic rollback for HIGH-risk changes
//   - Idempotent creates, dry-run previews, and audit logging
//
// Every command flows through the same workflow:
//
//	rosflow -d <device> run "<command>" [--approve] [--dry-run]
//	         └────┬────┘     └────────────┬────────────────────┘
//	        Device scope        Safety workflow
//
// Examples:
//
//	rosflow -d edge-r1 run "/ip address print"                    # LOW: direct
//	rosflow -d edge-r1 run "/ip pool add name=lan ..." --approve  # MEDIUM: approved
//	rosflow -d edge-r1 run "/ip address add ..." --approve        # HIGH: safe-mode txn
//	rosflow classify "/system reboot"                             # Tier, no I/O
//	rosflow -d edge-r1 preview "/ip route add ..."                # Dry-run text
//	rosflow batch changes.yaml --approve                          # Multi-device batch
//	rosflow audit list --device edge-r1 --failures                # Audit trail
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rosflow-network/rosflow/pkg/audit"
	"github.com/rosflow-network/rosflow/pkg/cli"
	"github.com/rosflow-network/rosflow/pkg/engine"
	"github.com/rosflow-network/rosflow/pkg/inventory"
	"github.com/rosflow-network/rosflow/pkg/lock"
	"github.com/rosflow-network/rosflow/pkg/settings"
	"github.com/rosflow-network/rosflow/pkg/transport"
	"github.com/rosflow-network/rosflow/pkg/util"
	"github.com/rosflow-network/rosflow/pkg/version"
)

// Exit codes mirror workflow statuses so scripts can branch on the outcome.
const (
	exitSuccess    = 0
	exitFailed     = 1
	exitRejected   = 2
	exitRolledBack = 3
)

var (
	// Context flags
	deviceName    string // -d, --device
	inventoryPath string // --inventory

	// Option flags
	verbose    bool
	jsonOutput bool

	// Global state
	userSettings *settings.Settings
	inv          *inventory.Inventory

	// exitCode is set by commands that map workflow statuses to exit codes.
	exitCode = exitSuccess
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.Red("Error: ")+err.Error())
		os.Exit(exitFailed)
	}
	os.Exit(exitCode)
}

var rootCmd = &cobra.Command{
	Use:               "rosflow",
	Short:             "Command safety and workflow engine for router CLIs",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Rosflow runs configuration commands on router-class devices through a
safety workflow: every command is risk-classified, mutating commands need
--approve, and HIGH-risk commands run inside a reversible safe-mode
transaction that rolls back automatically on failure.

  rosflow -d <device> run "<command>" [--approve] [--dry-run]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipsInventory(cmd) {
			return nil
		}

		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		// Apply defaults from settings
		if deviceName == "" {
			deviceName = userSettings.DefaultDevice
		}
		if inventoryPath == "" {
			inventoryPath = userSettings.GetInventory()
		}
		if userSettings.JSONOutput {
			jsonOutput = true
		}

		// Quiet by default, verbose on -v
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		inv, err = inventory.Load(inventoryPath)
		if err != nil {
			return fmt.Errorf("loading inventory: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "Device name from the inventory")
	rootCmd.PersistentFlags().StringVar(&inventoryPath, "inventory", "", "Inventory file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "workflow", Title: "Workflow Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{runCmd, batchCmd} {
		cmd.GroupID = "workflow"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{classifyCmd, previewCmd, auditCmd} {
		cmd.GroupID = "inspect"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("rosflow dev build (use 'make build' for version info)")
		} else {
			fmt.Printf("rosflow %s (%s)\n", version.Version, version.GitCommit)
		}
	},
}

// skipsInventory reports whether cmd (or any ancestor) runs without device
// inventory: settings, help, version, and the pure classifier.
func skipsInventory(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings", "classify", "preview", "completion":
			return true
		}
	}
	return false
}

// requireDevice ensures a device is specified via -d flag or settings.
// A device with no password in the inventory prompts for one when stdin is
// a terminal.
func requireDevice() (string, error) {
	if deviceName == "" {
		return "", fmt.Errorf("device required: use -d <device> flag")
	}
	dev, err := inv.Device(deviceName)
	if err != nil {
		return "", err
	}

	password, err := dev.ResolvePassword()
	if err != nil {
		return "", err
	}
	if password == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return "", fmt.Errorf("device '%s' has no password configured and stdin is not a terminal", deviceName)
		}
		fmt.Fprintf(os.Stderr, "Password for %s@%s: ", dev.User, dev.Host)
		entered, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		dev.Password = string(entered)
	}
	return deviceName, nil
}

// newOrchestrator assembles the engine from the loaded inventory: SSH
// transport, optional Redis lock registry, optional file audit log.
func newOrchestrator() (*engine.Orchestrator, error) {
	cfg := engine.Config{
		Inventory: inv,
		Dialer:    &transport.SSHDialer{},
	}

	if addr := inv.Engine.LockRegistry; addr != "" {
		locks, err := lock.NewRegistry(addr)
		if err != nil {
			return nil, fmt.Errorf("connecting to lock registry %s: %w", addr, err)
		}
		cfg.Locks = locks
	}

	if path := inv.Engine.AuditLog; path != "" {
		logger, err := audit.NewFileLogger(path, audit.RotationConfig{
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			cfg.Audit = logger
		}
	}

	return engine.New(cfg), nil
}

// statusExitCode maps a workflow status to the process exit code.
func statusExitCode(status engine.Status) int {
	switch status {
	case engine.StatusSuccess:
		return exitSuccess
	case engine.StatusRejected:
		return exitRejected
	case engine.StatusRolledBack:
		return exitRolledBack
	default:
		return exitFailed
	}
}
