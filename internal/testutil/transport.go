// Package testutil provides scripted fake transports for engine tests.
//
// The fakes stand in for the device's CLI channel: they record every line
// the engine sends, reply from a programmable script, and can simulate a
// dropped connection mid-batch — including the device-side safe-mode revert
// that a real router performs when its controlling session disconnects.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rosflow-network/rosflow/pkg/transport"
)

// ErrDisconnected is returned by a fake transport after a simulated or
// injected connection loss.
var ErrDisconnected = errors.New("connection lost")

// Reply scripts the fake's response to one command. Zero value means
// "empty output, success".
type Reply struct {
	Output string
	Err    error
	// Disconnect simulates the connection dying while this command is in
	// flight: the call fails and every later call fails too.
	Disconnect bool
}

// FakeTransport is a scripted, re-entrancy-guarded Transport. Any overlap of
// two in-flight calls on the same transport is recorded as a violation, which
// is how tests verify the engine's per-device serialization.
type FakeTransport struct {
	Device string

	mu         sync.Mutex
	replies    map[string]Reply
	replySeq   map[string][]Reply
	sent       []string
	controls   [][]byte
	dead       bool
	closed     bool
	inFlight   int32
	violations int32
}

// NewFakeTransport creates a fake with an empty script.
func NewFakeTransport(device string) *FakeTransport {
	return &FakeTransport{
		Device:   device,
		replies:  make(map[string]Reply),
		replySeq: make(map[string][]Reply),
	}
}

// Script sets the reply for an exact command line.
func (f *FakeTransport) Script(command string, r Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[command] = r
}

// Run implements transport.Transport.
func (f *FakeTransport) Run(ctx context.Context, line string) (string, error) {
	if n := atomic.AddInt32(&f.inFlight, 1); n > 1 {
		atomic.AddInt32(&f.violations, 1)
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dead || f.closed {
		return "", fmt.Errorf("%s: %w", f.Device, ErrDisconnected)
	}

	f.sent = append(f.sent, line)

	r := f.replies[line]
	if r.Disconnect {
		f.dead = true
		return "", fmt.Errorf("%s: %w", f.Device, ErrDisconnected)
	}
	return r.Output, r.Err
}

// SendControl implements transport.Transport. Control bytes are recorded
// separately from command lines.
func (f *FakeTransport) SendControl(ctx context.Context, b []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dead || f.closed {
		return "", fmt.Errorf("%s: %w", f.Device, ErrDisconnected)
	}

	f.controls = append(f.controls, append([]byte(nil), b...))

	key := controlKey(b)
	r, ok := f.replies[key]
	if q := f.replySeq[key]; len(q) > 0 {
		r, ok = q[0], true
		f.replySeq[key] = q[1:]
	}
	if ok {
		if r.Disconnect {
			f.dead = true
			return "", fmt.Errorf("%s: %w", f.Device, ErrDisconnected)
		}
		return r.Output, r.Err
	}
	return "", nil
}

// ScriptControl sets the reply for a control-byte write.
func (f *FakeTransport) ScriptControl(b []byte, r Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[controlKey(b)] = r
}

// ScriptControlSeq queues replies for successive writes of the same control
// bytes: the first write consumes the first reply, and so on. The queue takes
// precedence over a ScriptControl reply until drained.
func (f *FakeTransport) ScriptControlSeq(b []byte, rs ...Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := controlKey(b)
	f.replySeq[key] = append(f.replySeq[key], rs...)
}

func controlKey(b []byte) string {
	return fmt.Sprintf("<ctrl:%x>", b)
}

// Close implements transport.Transport.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Kill simulates the connection dying between calls.
func (f *FakeTransport) Kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = true
}

// Sent returns every command line sent so far, in order.
func (f *FakeTransport) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentContaining returns the sent lines containing the substring.
func (f *FakeTransport) SentContaining(sub string) []string {
	var out []string
	for _, l := range f.Sent() {
		if strings.Contains(l, sub) {
			out = append(out, l)
		}
	}
	return out
}

// Controls returns every control-byte write so far, in order.
func (f *FakeTransport) Controls() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.controls))
	copy(out, f.controls)
	return out
}

// Closed reports whether Close was called.
func (f *FakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Violations returns how many times two calls overlapped in flight.
func (f *FakeTransport) Violations() int {
	return int(atomic.LoadInt32(&f.violations))
}

// FakeDialer hands out FakeTransports per device and counts dials, letting
// tests assert on reconnects and retry budgets.
type FakeDialer struct {
	mu sync.Mutex
	// FailFirst makes the first N dials fail before succeeding.
	FailFirst int
	// FailAlways makes every dial fail.
	FailAlways bool

	dials      int
	transports map[string][]*FakeTransport
	// Scripts are applied to each new transport for the device.
	scripts    map[string]map[string]Reply
	scriptSeqs map[string]map[string][]Reply
}

// NewFakeDialer creates a dialer with no scripted failures.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{
		transports: make(map[string][]*FakeTransport),
		scripts:    make(map[string]map[string]Reply),
		scriptSeqs: make(map[string]map[string][]Reply),
	}
}

// Script sets the reply for a command on every future transport to device.
// The device key is the inventory host, which tests set equal to the name.
func (d *FakeDialer) Script(device, command string, r Reply) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scripts[device] == nil {
		d.scripts[device] = make(map[string]Reply)
	}
	d.scripts[device][command] = r
}

// ScriptControl sets the reply for a control write on future transports.
func (d *FakeDialer) ScriptControl(device string, b []byte, r Reply) {
	d.Script(device, controlKey(b), r)
}

// ScriptControlSeq queues per-write control replies on every future
// transport to device, so successive toggles can answer differently.
func (d *FakeDialer) ScriptControlSeq(device string, b []byte, rs ...Reply) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scriptSeqs[device] == nil {
		d.scriptSeqs[device] = make(map[string][]Reply)
	}
	key := controlKey(b)
	d.scriptSeqs[device][key] = append(d.scriptSeqs[device][key], rs...)
}

// Dial implements transport.Dialer. The host is used as the device key.
func (d *FakeDialer) Dial(ctx context.Context, host string, port int, user, password string) (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.FailAlways {
		return nil, fmt.Errorf("dial %s: %w", host, ErrDisconnected)
	}
	if d.FailFirst > 0 {
		d.FailFirst--
		return nil, fmt.Errorf("dial %s: %w", host, ErrDisconnected)
	}

	t := NewFakeTransport(host)
	for cmd, r := range d.scripts[host] {
		t.replies[cmd] = r
	}
	for key, q := range d.scriptSeqs[host] {
		t.replySeq[key] = append([]Reply(nil), q...)
	}
	d.transports[host] = append(d.transports[host], t)
	return t, nil
}

// Dials returns the total number of dial attempts.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Transports returns every transport created for the device, in dial order.
func (d *FakeDialer) Transports(device string) []*FakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeTransport(nil), d.transports[device]...)
}

// Last returns the most recent transport for the device, or nil.
func (d *FakeDialer) Last(device string) *FakeTransport {
	ts := d.Transports(device)
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}

// AllSent concatenates the lines sent on every transport for the device.
func (d *FakeDialer) AllSent(device string) []string {
	var out []string
	for _, t := range d.Transports(device) {
		out = append(out, t.Sent()...)
	}
	return out
}
