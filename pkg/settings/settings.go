// Package settings manages persistent user settings for the rosflow CLI.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds persistent user preferences
type Settings struct {
	// DefaultDevice is the device to use when -d is not specified
	DefaultDevice string `json:"default_device,omitempty"`

	// Inventory overrides the default inventory file path
	Inventory string `json:"inventory,omitempty"`

	// JSONOutput makes workflow results print as JSON by default
	JSONOutput bool `json:"json_output,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "rosflow_settings.json"
	}
	return filepath.Join(home, ".rosflow", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetInventory returns the inventory path (with fallback)
func (s *Settings) GetInventory() string {
	if s.Inventory != "" {
		return s.Inventory
	}
	return "/etc/rosflow/inventory.yaml"
}

// SetDevice sets the default device
func (s *Settings) SetDevice(device string) {
	s.DefaultDevice = device
}

// SetInventory sets the inventory file path
func (s *Settings) SetInventory(path string) {
	s.Inventory = path
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
