package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettings_Defaults(t *testing.T) {
	s := &Settings{}

	// Test default inventory path
	if got := s.GetInventory(); got != "/etc/rosflow/inventory.yaml" {
		t.Errorf("GetInventory() default = %q, want %q", got, "/etc/rosflow/inventory.yaml")
	}

	if s.DefaultDevice != "" {
		t.Errorf("DefaultDevice should be empty, got %q", s.DefaultDevice)
	}
	if s.JSONOutput {
		t.Error("JSONOutput should default to false")
	}
}

func TestSettings_SettersGetters(t *testing.T) {
	s := &Settings{}

	s.SetDevice("edge-r1")
	if s.DefaultDevice != "edge-r1" {
		t.Errorf("SetDevice() failed, got %q", s.DefaultDevice)
	}

	s.SetInventory("/custom/inventory.yaml")
	if s.GetInventory() != "/custom/inventory.yaml" {
		t.Errorf("SetInventory() failed, got %q", s.GetInventory())
	}
}

func TestSettings_Clear(t *testing.T) {
	s := &Settings{
		DefaultDevice: "edge-r1",
		Inventory:     "/path/inventory.yaml",
		JSONOutput:    true,
	}

	s.Clear()

	if s.DefaultDevice != "" || s.Inventory != "" || s.JSONOutput {
		t.Error("Clear() should reset all fields to empty")
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "settings.json")

	original := &Settings{
		DefaultDevice: "edge-r1",
		Inventory:     "/etc/rosflow/lab.yaml",
		JSONOutput:    true,
	}

	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	if loaded.DefaultDevice != original.DefaultDevice {
		t.Errorf("DefaultDevice = %q, want %q", loaded.DefaultDevice, original.DefaultDevice)
	}
	if loaded.Inventory != original.Inventory {
		t.Errorf("Inventory = %q, want %q", loaded.Inventory, original.Inventory)
	}
	if !loaded.JSONOutput {
		t.Error("JSONOutput should round-trip")
	}
}

func TestSettings_LoadMissingFile(t *testing.T) {
	s, err := LoadFrom(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err != nil {
		t.Fatalf("LoadFrom() missing file should not error: %v", err)
	}
	if s == nil || s.DefaultDevice != "" {
		t.Error("LoadFrom() missing file should return empty settings")
	}
}

func TestSettings_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() should fail on corrupt JSON")
	}
}
