package engine

import "testing"

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		command string
		want    RiskTier
	}{
		// Read-only verbs are LOW regardless of path.
		{"/ip firewall filter print", TierLow},
		{"/ip address print", TierLow},
		{"/interface print", TierLow},
		{"/system identity print", TierLow},
		{"/export", TierLow},
		{"/log print", TierLow},
		{"/interface monitor-traffic ether1 monitor", TierLow},
		{"/ping 10.0.0.1", TierLow},

		// Management-path and unrecoverable changes are HIGH.
		{"/ip address add address=10.0.0.1/24 interface=ether1", TierHigh},
		{"/ip route add dst-address=0.0.0.0/0 gateway=10.0.0.254", TierHigh},
		{"/ip firewall filter add chain=input action=drop", TierHigh},
		{"/ip service set ssh port=2222", TierHigh},
		{"/interface ethernet set ether1 disabled=yes", TierHigh},
		{"/user add name=ops password=x", TierHigh},
		{"/password", TierHigh},
		{"/system reboot", TierHigh},
		{"/system reset-configuration", TierHigh},
		{"/system backup save name=nightly", TierHigh},
		{"/system backup load name=nightly", TierHigh},
		{"/routing bgp instance set default as=65001", TierHigh},
		{"/file remove numbers=0", TierHigh},

		// Everything else mutating is MEDIUM.
		{"/ip dhcp-server add interface=bridge1", TierMedium},
		{"/system identity set name=edge-r1", TierMedium},
		{"/ip pool add name=lan ranges=10.1.1.10-10.1.1.250", TierMedium},
		{"/queue simple add target=10.1.1.0/24", TierMedium},
		{"/system ntp client set enabled=yes", TierMedium},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if got := c.Classify(tt.command); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := NewClassifier()
	cmd := "/ip firewall nat add chain=srcnat action=masquerade"
	first := c.Classify(cmd)
	for i := 0; i < 10; i++ {
		if got := c.Classify(cmd); got != first {
			t.Fatalf("Classify is not deterministic: %v then %v", first, got)
		}
	}
}

func TestClassifyHighOverride(t *testing.T) {
	// When rules conflict, the highest matching tier must win.
	rules := []Rule{
		{Name: "broad medium", Tier: TierMedium, Prefixes: []string{"/ip"}},
		{Name: "narrow high", Tier: TierHigh, Prefixes: []string{"/ip firewall"}},
	}
	c := NewClassifierWithRules(rules)

	if got := c.Classify("/ip firewall filter add chain=input"); got != TierHigh {
		t.Errorf("HIGH should override MEDIUM on conflict, got %v", got)
	}

	// Same table in reverse order must give the same answer.
	c = NewClassifierWithRules([]Rule{rules[1], rules[0]})
	if got := c.Classify("/ip firewall filter add chain=input"); got != TierHigh {
		t.Errorf("rule order should not weaken the tier, got %v", got)
	}
}

func TestTierOrdering(t *testing.T) {
	if !(TierLow < TierMedium && TierMedium < TierHigh) {
		t.Error("risk tiers must be ordered LOW < MEDIUM < HIGH")
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in   string
		path string
		verb string
		args string
	}{
		{"/ip address add address=10.0.0.1/24", "/ip address", "add", "address=10.0.0.1/24"},
		{"/ip address print", "/ip address", "print", ""},
		{"/system reboot", "/system", "reboot", ""},
		{"/export", "/export", "", ""},
		{"  /user  set  admin  password=x ", "/user set", "admin", "password=x"},
		{"", "", "", ""},
	}

	for _, tt := range tests {
		path, verb, args := splitCommand(tt.in)
		if path != tt.path || verb != tt.verb || args != tt.args {
			t.Errorf("splitCommand(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tt.in, path, verb, args, tt.path, tt.verb, tt.args)
		}
	}
}
