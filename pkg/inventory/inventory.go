// Package inventory loads the device inventory and engine tunables from a
// YAML file. The engine owns no ambient configuration: callers load an
// Inventory and hand it to the orchestrator's constructor.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rosflow-network/rosflow/pkg/util"
)

// Default tunables applied when the YAML omits them.
const (
	defaultPort            = 22
	defaultConnectTimeout  = 15 * time.Second
	defaultExecTimeout     = 30 * time.Second
	defaultSafeModeTimeout = 9 * time.Minute
	defaultRetryBudget     = 3
	defaultWorkers         = 5
)

// Device describes one managed router.
type Device struct {
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"` // env var holding the password; wins over Password

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ExecTimeout    time.Duration `yaml:"exec_timeout"`
}

// Engine holds workflow engine tunables.
type Engine struct {
	// SafeModeTimeout is the wall-clock deadline for a safe-mode
	// transaction. The device reverts on its own after this; the
	// controller uses the same value for its local deadline.
	SafeModeTimeout time.Duration `yaml:"safe_mode_timeout"`

	// RetryBudget is the number of reconnect attempts before a call
	// surfaces a connection error.
	RetryBudget int `yaml:"retry_budget"`

	// Workers bounds cross-device parallelism for batch callers.
	Workers int `yaml:"workers"`

	// DryRun substitutes previews for HIGH-risk commands globally.
	DryRun bool `yaml:"dry_run"`

	// LockRegistry is an optional Redis address ("host:port") for
	// cross-operator device locks. Empty disables distributed locking.
	LockRegistry string `yaml:"lock_registry"`

	// AuditLog is the path of the JSON-lines audit log. Empty disables
	// audit logging.
	AuditLog string `yaml:"audit_log"`
}

// Inventory is the parsed inventory file.
type Inventory struct {
	Devices []Device `yaml:"devices"`
	Engine  Engine   `yaml:"engine"`
}

// Load reads and validates an inventory YAML file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory %s: %w", path, err)
	}

	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing inventory %s: %w", filepath.Base(path), err)
	}
	return inv, nil
}

// Parse parses inventory YAML, applies defaults, and validates.
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, err
	}

	applyDefaults(&inv)
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func applyDefaults(inv *Inventory) {
	for i := range inv.Devices {
		d := &inv.Devices[i]
		if d.Port == 0 {
			d.Port = defaultPort
		}
		if d.ConnectTimeout == 0 {
			d.ConnectTimeout = defaultConnectTimeout
		}
		if d.ExecTimeout == 0 {
			d.ExecTimeout = defaultExecTimeout
		}
	}
	if inv.Engine.SafeModeTimeout == 0 {
		inv.Engine.SafeModeTimeout = defaultSafeModeTimeout
	}
	if inv.Engine.RetryBudget == 0 {
		inv.Engine.RetryBudget = defaultRetryBudget
	}
	if inv.Engine.Workers == 0 {
		inv.Engine.Workers = defaultWorkers
	}
}

// Validate checks the inventory for structural problems.
func (inv *Inventory) Validate() error {
	var b util.ValidationBuilder

	seen := make(map[string]bool)
	for i, d := range inv.Devices {
		prefix := fmt.Sprintf("devices[%d]", i)
		if d.Name != "" {
			prefix = fmt.Sprintf("device '%s'", d.Name)
		}
		b.Add(d.Name != "", fmt.Sprintf("%s: name is required", prefix))
		b.Add(d.Host != "", fmt.Sprintf("%s: host is required", prefix))
		b.Add(d.User != "", fmt.Sprintf("%s: user is required", prefix))
		b.Add(d.Port > 0 && d.Port < 65536, fmt.Sprintf("%s: port %d out of range", prefix, d.Port))
		if d.Name != "" && seen[d.Name] {
			b.AddErrorf("%s: duplicate device name", prefix)
		}
		seen[d.Name] = true
	}

	b.Add(inv.Engine.RetryBudget > 0, "engine: retry_budget must be positive")
	b.Add(inv.Engine.Workers > 0, "engine: workers must be positive")
	b.Add(inv.Engine.SafeModeTimeout > 0, "engine: safe_mode_timeout must be positive")

	return b.Build()
}

// Device returns the device with the given name.
func (inv *Inventory) Device(name string) (*Device, error) {
	for i := range inv.Devices {
		if inv.Devices[i].Name == name {
			return &inv.Devices[i], nil
		}
	}
	return nil, fmt.Errorf("device '%s' not in inventory", name)
}

// DeviceNames returns the inventory's device names in file order.
func (inv *Inventory) DeviceNames() []string {
	names := make([]string, len(inv.Devices))
	for i, d := range inv.Devices {
		names[i] = d.Name
	}
	return names
}

// ResolvePassword returns the effective password for a device, reading
// PasswordEnv when set.
func (d *Device) ResolvePassword() (string, error) {
	if d.PasswordEnv != "" {
		v := os.Getenv(d.PasswordEnv)
		if v == "" {
			return "", fmt.Errorf("device '%s': env var %s is not set", d.Name, d.PasswordEnv)
		}
		return v, nil
	}
	return d.Password, nil
}

// Redact returns a copy of the device with credentials masked, for logs.
func (d *Device) Redact() Device {
	out := *d
	if out.Password != "" {
		out.Password = strings.Repeat("*", 8)
	}
	return out
}
