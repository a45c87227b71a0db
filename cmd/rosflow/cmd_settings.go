package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rosflow-network/rosflow/pkg/cli"
	"github.com/rosflow-network/rosflow/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.rosflow/settings.json.

Settings provide defaults for context flags:
  - default_device: Used when -d is not specified
  - inventory:      Inventory file path
  - json_output:    Print workflow results as JSON

Examples:
  rosflow settings show
  rosflow settings set device edge-r1
  rosflow settings set inventory /etc/rosflow/inventory.yaml
  rosflow settings clear`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

		t := cli.NewTable("SETTING", "VALUE")

		printSetting := func(name, value string) {
			if value == "" {
				value = "(not set)"
			}
			t.Row(name, value)
		}

		printSetting("default_device", s.DefaultDevice)
		printSetting("inventory", s.Inventory)
		printSetting("json_output", strconv.FormatBool(s.JSONOutput))

		t.Flush()
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Set a setting value",
	Long: `Set a persistent setting value.

Available settings:
  device     - Default device name (-d flag default)
  inventory  - Inventory file path (--inventory flag default)
  json       - Print workflow results as JSON (true/false)

Examples:
  rosflow settings set device edge-r1
  rosflow settings set inventory /etc/rosflow/inventory.yaml
  rosflow settings set json true`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		setting := args[0]
		value := args[1]

		s, err := settings.Load()
		if err != nil {
			s = &settings.Settings{}
		}

		switch setting {
		case "device", "default_device":
			s.SetDevice(value)
			fmt.Printf("Default device set to: %s\n", value)
		case "inventory":
			s.SetInventory(value)
			fmt.Printf("Inventory path set to: %s\n", value)
		case "json", "json_output":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid boolean: %s", value)
			}
			s.JSONOutput = b
			fmt.Printf("JSON output set to: %t\n", b)
		default:
			return fmt.Errorf("unknown setting: %s (valid: device, inventory, json)", setting)
		}

		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <setting>",
	Short: "Get a setting value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		var value string
		switch args[0] {
		case "device", "default_device":
			value = s.DefaultDevice
		case "inventory":
			value = s.Inventory
		case "json", "json_output":
			value = strconv.FormatBool(s.JSONOutput)
		default:
			return fmt.Errorf("unknown setting: %s (valid: device, inventory, json)", args[0])
		}

		if value == "" {
			fmt.Println("(not set)")
		} else {
			fmt.Println(value)
		}
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &settings.Settings{}
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println("All settings cleared.")
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(settings.DefaultSettingsPath())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsClearCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}
