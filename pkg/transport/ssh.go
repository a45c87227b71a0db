package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/rosflow-network/rosflow/pkg/util"
)

// promptRe matches the router's interactive prompt at the end of the output
// buffer, e.g. "[admin@edge-r1] > " or "[admin@edge-r1] /ip address> ".
var promptRe = regexp.MustCompile(`\[[^\[\]\r\n]+@[^\[\]\r\n]+\] (?:/[^\r\n>]*)?> $`)

// SSHDialer opens interactive SSH shell sessions to devices.
type SSHDialer struct {
	// ConnectTimeout bounds the TCP+handshake phase. Zero means 15s.
	ConnectTimeout time.Duration
}

// Dial connects to host:port and starts an interactive shell with a PTY.
// The shell stays open for the life of the Transport; dropping it without a
// safe-mode commit is what triggers the device-side revert.
func (d *SSHDialer) Dial(ctx context.Context, host string, port int, user, password string) (Transport, error) {
	timeout := d.ConnectTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
		},
		// Device keys are regenerated on reset; operators pin them at the
		// inventory level, not here.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("SSH session to %s: %w", addr, err)
	}

	// A dumb PTY keeps the CLI interactive (safe mode needs it) while
	// minimizing escape sequences in the output.
	if err := session.RequestPty("dumb", 0, 512, ssh.TerminalModes{
		ssh.ECHO: 0,
	}); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("request pty on %s: %w", addr, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stdin pipe on %s: %w", addr, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stdout pipe on %s: %w", addr, err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("start shell on %s: %w", addr, err)
	}

	t := &sshTransport{
		addr:    addr,
		client:  client,
		session: session,
		stdin:   stdin,
		chunks:  make(chan []byte, 16),
	}
	go t.pump(stdout)

	// Drain the login banner up to the first prompt.
	if _, err := t.readUntilPrompt(ctx); err != nil {
		t.Close()
		return nil, fmt.Errorf("waiting for prompt on %s: %w", addr, err)
	}

	util.WithField("addr", addr).Debug("SSH shell session established")
	return t, nil
}

type sshTransport struct {
	addr    string
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	chunks  chan []byte
	pending bytes.Buffer
}

func (t *sshTransport) pump(r io.Reader) {
	defer close(t.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

// Run writes a command line and returns the reply between the echoed line
// and the next prompt.
func (t *sshTransport) Run(ctx context.Context, line string) (string, error) {
	if _, err := io.WriteString(t.stdin, line+"\r"); err != nil {
		return "", fmt.Errorf("write to %s: %w", t.addr, err)
	}
	out, err := t.readUntilPrompt(ctx)
	if err != nil {
		return "", err
	}
	return trimReply(out, line), nil
}

// SendControl writes raw bytes (e.g. the safe-mode toggle character) and
// returns the reply up to the next prompt.
func (t *sshTransport) SendControl(ctx context.Context, b []byte) (string, error) {
	if _, err := t.stdin.Write(b); err != nil {
		return "", fmt.Errorf("write to %s: %w", t.addr, err)
	}
	out, err := t.readUntilPrompt(ctx)
	if err != nil {
		return "", err
	}
	return trimReply(out, ""), nil
}

// readUntilPrompt accumulates output until the prompt regexp matches the
// buffer tail, the context expires, or the stream ends.
func (t *sshTransport) readUntilPrompt(ctx context.Context) (string, error) {
	for {
		if loc := promptRe.FindIndex(t.pending.Bytes()); loc != nil && loc[1] == t.pending.Len() {
			out := string(t.pending.Bytes()[:loc[0]])
			t.pending.Reset()
			return out, nil
		}
		select {
		case chunk, ok := <-t.chunks:
			if !ok {
				return "", fmt.Errorf("session to %s closed: %w", t.addr, util.ErrConnection)
			}
			t.pending.Write(chunk)
		case <-ctx.Done():
			return "", fmt.Errorf("reading from %s: %w", t.addr, util.ErrTimeout)
		}
	}
}

// Close tears down the shell and the SSH connection.
func (t *sshTransport) Close() error {
	t.stdin.Close()
	t.session.Close()
	return t.client.Close()
}

// trimReply strips the echoed command line, carriage returns, and
// surrounding blank lines from a raw reply.
func trimReply(out, echoed string) string {
	out = string(bytes.ReplaceAll([]byte(out), []byte("\r"), nil))
	lines := bytes.Split([]byte(out), []byte("\n"))
	var kept [][]byte
	for i, l := range lines {
		if i == 0 && echoed != "" && bytes.Equal(bytes.TrimSpace(l), []byte(echoed)) {
			continue
		}
		kept = append(kept, l)
	}
	return string(bytes.TrimSpace(bytes.Join(kept, []byte("\n"))))
}
