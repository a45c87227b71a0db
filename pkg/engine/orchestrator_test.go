package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rosflow-network/rosflow/internal/testutil"
	"github.com/rosflow-network/rosflow/pkg/audit"
)

func testOrchestrator(t *testing.T, dialer *testutil.FakeDialer, devices ...string) *Orchestrator {
	t.Helper()
	o := New(Config{
		Inventory: testInventory(devices...),
		Dialer:    dialer,
		User:      "tester",
	})
	o.conn.baseBackoff = time.Millisecond
	t.Cleanup(func() { o.Close() })
	return o
}

func TestExecuteLowDirect(t *testing.T) {
	dialer := testutil.NewFakeDialer()
	dialer.Script("edge-r1", "/ip firewall filter print", testutil.Reply{Output: "0   chain=input action=accept"})
	o := testOrchestrator(t, dialer, "edge-r1")

	res := o.Execute(context.Background(), "edge-r1", "/ip firewall filter print", false)
	if !res.OK() {
		t.Fatalf("status = %s (%s), want SUCCESS", res.Status, res.Message)
	}
	if res.Output != "0   chain=input action=accept" {
		t.Errorf("output = %q", res.Output)
	}
	if res.Tier != TierLow {
		t.Errorf("tier = %s, want LOW", res.Tier)
	}
	if res.IdempotencyKey != "" {
		t.Errorf("idempotency key = %q, want empty for a plain execute", res.IdempotencyKey)
	}
	if n := len(dialer.Last("edge-r1").Controls()); n != 0 {
		t.Errorf("control writes = %d, want 0 for a direct read", n)
	}
}

func TestExecuteUnapprovedRejected(t *testing.T) {
	tests := []struct {
		name    string
		command string
		tier    RiskTier
	}{
		{"medium", "/ip pool add name=lan ranges=10.0.0.10-10.0.0.250", TierMedium},
		{"high", "/system reboot", TierHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := testutil.NewFakeDialer()
			o := testOrchestrator(t, dialer, "edge-r1")

			res := o.Execute(context.Background(), "edge-r1", tt.command, false)
			if res.Status != StatusRejected {
				t.Fatalf("status = %s, want REJECTED", res.Status)
			}
			if res.Tier != tt.tier {
				t.Errorf("tier = %s, want %s", res.Tier, tt.tier)
			}
			if !strings.Contains(res.Message, "--approve") {
				t.Errorf("message should name the missing approval: %q", res.Message)
			}
			if dialer.Dials() != 0 {
				t.Errorf("dials = %d, want 0: rejection must make no remote calls", dialer.Dials())
			}
		})
	}
}

func TestExecuteMediumApproved(t *testing.T) {
	cmd := "/ip pool add name=lan ranges=10.0.0.10-10.0.0.250"
	dialer := testutil.NewFakeDialer()
	dialer.Script("edge-r1", cmd, testutil.Reply{})
	o := testOrchestrator(t, dialer, "edge-r1")

	res := o.Execute(context.Background(), "edge-r1", cmd, true)
	if !res.OK() {
		t.Fatalf("status = %s (%s), want SUCCESS", res.Status, res.Message)
	}
	if res.TransactionID != "" {
		t.Error("MEDIUM commands execute directly, not inside a transaction")
	}
	if n := len(dialer.Last("edge-r1").Controls()); n != 0 {
		t.Errorf("control writes = %d, want 0 for a direct execute", n)
	}
}

func TestExecuteHighSafeMode(t *testing.T) {
	cmd := "/ip address add address=10.0.0.1/24 interface=ether1"
	dialer := testutil.NewFakeDialer()
	scriptSafeMode(dialer, "edge-r1")
	o := testOrchestrator(t, dialer, "edge-r1")

	res := o.Execute(context.Background(), "edge-r1", cmd, true)
	if !res.OK() {
		t.Fatalf("status = %s (%s), want SUCCESS", res.Status, res.Message)
	}
	if res.TransactionID == "" {
		t.Error("HIGH success should carry the transaction id")
	}

	tr := dialer.Last("edge-r1")
	if n := len(tr.Controls()); n != 2 {
		t.Errorf("control writes = %d, want 2 (enter + commit)", n)
	}
	sent := tr.Sent()
	if len(sent) != 2 || sent[0] != cmd || sent[1] != safeModeProbe {
		t.Errorf("sent = %v, want [command, probe]", sent)
	}
}

func TestExecuteHighRollbackOnDisconnect(t *testing.T) {
	cmd := "/ip route add dst-address=0.0.0.0/0 gateway=10.0.0.254"
	dialer := testutil.NewFakeDialer()
	scriptSafeMode(dialer, "edge-r1")
	dialer.Script("edge-r1", cmd, testutil.Reply{Disconnect: true})
	o := testOrchestrator(t, dialer, "edge-r1")

	res := o.Execute(context.Background(), "edge-r1", cmd, true)
	if res.Status != StatusRolledBack {
		t.Fatalf("status = %s (%s), want ROLLED_BACK", res.Status, res.Message)
	}
	if len(res.Attempted) != 1 || res.Attempted[0] != cmd {
		t.Errorf("attempted = %v, want the failing command", res.Attempted)
	}
	if !strings.Contains(res.Message, cmd) {
		t.Errorf("message should name the failing command: %q", res.Message)
	}
	if !dialer.Last("edge-r1").Closed() {
		t.Error("rollback must drop the controlling session")
	}
}

func TestExecuteHighRollbackOnDeviceRejection(t *testing.T) {
	cmd := "/ip address add address=10.0.0.1/24 interface=ether1"
	dialer := testutil.NewFakeDialer()
	scriptSafeMode(dialer, "edge-r1")
	dialer.Script("edge-r1", cmd,
		testutil.Reply{Output: "failure: already have such address"})
	o := testOrchestrator(t, dialer, "edge-r1")

	res := o.Execute(context.Background(), "edge-r1", cmd, true)
	if res.Status != StatusRolledBack {
		t.Fatalf("status = %s (%s), want ROLLED_BACK", res.Status, res.Message)
	}
	if !dialer.Last("edge-r1").Closed() {
		t.Error("rollback must drop the controlling session")
	}
}

func TestGlobalDryRunSubstitutesHighExecution(t *testing.T) {
	dialer := testutil.NewFakeDialer()
	inv := testInventory("edge-r1")
	inv.Engine.DryRun = true
	o := New(Config{Inventory: inv, Dialer: dialer, User: "tester"})
	o.conn.baseBackoff = time.Millisecond
	defer o.Close()

	res := o.Execute(context.Background(), "edge-r1", "/system reboot", true)
	if !res.OK() || !res.DryRun {
		t.Fatalf("status = %s dry-run = %v, want dry-run SUCCESS", res.Status, res.DryRun)
	}
	if !strings.Contains(res.Output, "DRY RUN") {
		t.Errorf("output should be the preview text: %q", res.Output)
	}
	if dialer.Dials() != 0 {
		t.Errorf("dials = %d, want 0 under global dry-run", dialer.Dials())
	}

	// MEDIUM commands still execute: dry-run only intercepts the HIGH path.
	cmd := "/ip pool add name=lan ranges=10.0.0.10-10.0.0.250"
	dialer.Script("edge-r1", cmd, testutil.Reply{})
	res = o.Execute(context.Background(), "edge-r1", cmd, true)
	if !res.OK() || res.DryRun {
		t.Fatalf("MEDIUM under global dry-run: status = %s dry-run = %v", res.Status, res.DryRun)
	}
	if dialer.Dials() != 1 {
		t.Errorf("dials = %d, want 1", dialer.Dials())
	}
}

func TestExecuteCreateSkipsDuplicate(t *testing.T) {
	cmd := "/ip pool add name=lan ranges=10.0.0.10-10.0.0.250"
	dialer := testutil.NewFakeDialer()
	dialer.Script("edge-r1", "/ip pool print terse where name=lan",
		testutil.Reply{Output: "2   name=lan ranges=10.0.0.10-10.0.0.250"})
	o := testOrchestrator(t, dialer, "edge-r1")

	res := o.ExecuteCreate(context.Background(), "edge-r1", cmd,
		"/ip pool", map[string]string{"name": "lan"}, true)
	if !res.OK() {
		t.Fatalf("status = %s (%s), want SUCCESS", res.Status, res.Message)
	}
	if res.DuplicateID != "2" {
		t.Errorf("duplicate id = %q, want \"2\"", res.DuplicateID)
	}
	if res.IdempotencyKey != "/ip pool|name=lan" {
		t.Errorf("idempotency key = %q, want \"/ip pool|name=lan\"", res.IdempotencyKey)
	}
	for _, line := range dialer.AllSent("edge-r1") {
		if line == cmd {
			t.Fatal("create must not be sent when a duplicate exists")
		}
	}
}

func TestExecuteCreateProceedsWhenAbsent(t *testing.T) {
	cmd := "/ip pool add name=lan ranges=10.0.0.10-10.0.0.250"
	dialer := testutil.NewFakeDialer()
	dialer.Script("edge-r1", "/ip pool print terse where name=lan", testutil.Reply{Output: ""})
	dialer.Script("edge-r1", cmd, testutil.Reply{})
	o := testOrchestrator(t, dialer, "edge-r1")

	res := o.ExecuteCreate(context.Background(), "edge-r1", cmd,
		"/ip pool", map[string]string{"name": "lan"}, true)
	if !res.OK() {
		t.Fatalf("status = %s (%s), want SUCCESS", res.Status, res.Message)
	}
	if res.DuplicateID != "" {
		t.Errorf("duplicate id = %q, want empty", res.DuplicateID)
	}
	if res.IdempotencyKey != "/ip pool|name=lan" {
		t.Errorf("idempotency key = %q, want \"/ip pool|name=lan\"", res.IdempotencyKey)
	}
	if got := dialer.Last("edge-r1").SentContaining("add name=lan"); len(got) != 1 {
		t.Errorf("create sent %d times, want 1", len(got))
	}
}

func TestExecuteCreateTwiceSendsOneCreate(t *testing.T) {
	cmd := "/ip pool add name=lan ranges=10.0.0.10-10.0.0.250"
	query := "/ip pool print terse where name=lan"
	props := map[string]string{"name": "lan"}

	dialer := testutil.NewFakeDialer()
	dialer.Script("edge-r1", query, testutil.Reply{Output: ""})
	dialer.Script("edge-r1", cmd, testutil.Reply{})
	o := testOrchestrator(t, dialer, "edge-r1")

	first := o.ExecuteCreate(context.Background(), "edge-r1", cmd, "/ip pool", props, true)
	if !first.OK() || first.DuplicateID != "" {
		t.Fatalf("first create: %+v", first)
	}

	// The resource now exists on the device; the live session's script
	// reflects that for the second check.
	dialer.Last("edge-r1").Script(query, testutil.Reply{Output: "5   name=lan ranges=10.0.0.10-10.0.0.250"})

	second := o.ExecuteCreate(context.Background(), "edge-r1", cmd, "/ip pool", props, true)
	if !second.OK() {
		t.Fatalf("second create: status = %s (%s)", second.Status, second.Message)
	}
	if second.DuplicateID != "5" {
		t.Errorf("second create duplicate id = %q, want \"5\"", second.DuplicateID)
	}
	if got := dialer.Last("edge-r1").SentContaining("add name=lan"); len(got) != 1 {
		t.Errorf("create reached the transport %d times, want exactly 1", len(got))
	}
}

func TestExecuteCreateCheckFailureProceeds(t *testing.T) {
	cmd := "/ip pool add name=lan ranges=10.0.0.10-10.0.0.250"
	dialer := testutil.NewFakeDialer()
	dialer.Script("edge-r1", "/ip pool print terse where name=lan",
		testutil.Reply{Err: errors.New("channel garbled")})
	dialer.Script("edge-r1", cmd, testutil.Reply{})
	o := testOrchestrator(t, dialer, "edge-r1")

	res := o.ExecuteCreate(context.Background(), "edge-r1", cmd,
		"/ip pool", map[string]string{"name": "lan"}, true)
	if !res.OK() {
		t.Fatalf("status = %s (%s): a failed check degrades to create, not failure", res.Status, res.Message)
	}
	if res.DuplicateID != "" {
		t.Errorf("duplicate id = %q, want empty", res.DuplicateID)
	}
}

func TestExecuteUnknownDevice(t *testing.T) {
	o := testOrchestrator(t, testutil.NewFakeDialer(), "edge-r1")

	res := o.Execute(context.Background(), "edge-r9", "/export", false)
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", res.Status)
	}
	if !strings.Contains(res.Message, "edge-r9") {
		t.Errorf("message should name the device: %q", res.Message)
	}
}

func TestExecutePanicBecomesFailed(t *testing.T) {
	o := testOrchestrator(t, testutil.NewFakeDialer(), "edge-r1")
	o.safeMode = nil // force a nil dereference on the HIGH path

	res := o.Execute(context.Background(), "edge-r1", "/system reboot", true)
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", res.Status)
	}
	if !strings.Contains(res.Message, "internal error") {
		t.Errorf("message = %q, want internal error", res.Message)
	}
}

func TestExecuteEmitsAuditEvents(t *testing.T) {
	logger, err := audit.NewFileLogger(filepath.Join(t.TempDir(), "audit.jsonl"), audit.RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	dialer := testutil.NewFakeDialer()
	dialer.Script("edge-r1", "/export", testutil.Reply{Output: "# config"})
	o := New(Config{
		Inventory: testInventory("edge-r1"),
		Dialer:    dialer,
		Audit:     logger,
		User:      "tester",
	})
	o.conn.baseBackoff = time.Millisecond
	defer o.Close()

	o.Execute(context.Background(), "edge-r1", "/export", false)
	o.Execute(context.Background(), "edge-r1", "/system reboot", false)

	events, err := logger.Query(audit.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("audit events = %d, want 2", len(events))
	}
	if events[0].Status != "SUCCESS" || events[1].Status != "REJECTED" {
		t.Errorf("statuses = %s, %s, want SUCCESS, REJECTED", events[0].Status, events[1].Status)
	}
	for _, e := range events {
		if e.User != "tester" || e.Device != "edge-r1" {
			t.Errorf("event attribution = %s@%s, want tester@edge-r1", e.User, e.Device)
		}
	}
}
