package transport

import "testing"

func TestInterpret(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   Outcome
	}{
		{"empty output is success", "", OutcomeOK},
		{"print output is success", "0   address=10.0.0.1/24 interface=ether1", OutcomeOK},
		{"failure prefix", "failure: already have such address", OutcomeFailed},
		{"syntax error", "syntax error (line 1 column 12)", OutcomeFailed},
		{"bad command", "bad command name addd (line 1 column 13)", OutcomeFailed},
		{"invalid value", "invalid value for argument address", OutcomeFailed},
		{"no such item", "no such item (4)", OutcomeFailed},
		{"value mismatch", "input does not match any value of interface", OutcomeFailed},
		{"permission denied", "not enough permissions (9)", OutcomeFailed},
		{"expected end", "expected end of command (line 1 column 20)", OutcomeFailed},
		{"case insensitive", "Failure: cannot remove", OutcomeFailed},
		{"failure mid-output", "flags: X - disabled\nfailure: interface not found", OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Interpret(tt.output); got != tt.want {
				t.Errorf("Interpret(%q) = %v, want %v", tt.output, got, tt.want)
			}
		})
	}
}

func TestInterpretWith(t *testing.T) {
	// Ordered table: first match wins.
	patterns := []ResultPattern{
		{"error: benign", OutcomeOK},
		{"error", OutcomeFailed},
	}

	if got := InterpretWith(patterns, "error: benign warning"); got != OutcomeOK {
		t.Errorf("first match should win, got %v", got)
	}
	if got := InterpretWith(patterns, "error: fatal"); got != OutcomeFailed {
		t.Errorf("second pattern should match, got %v", got)
	}
}

func TestPatternsCopy(t *testing.T) {
	p := Patterns()
	if len(p) == 0 {
		t.Fatal("default pattern table should not be empty")
	}
	p[0].Substring = "mutated"
	if Patterns()[0].Substring == "mutated" {
		t.Error("Patterns should return a copy, not the backing table")
	}
}

func TestTrimReply(t *testing.T) {
	raw := "/ip address print\r\n 0   address=10.0.0.1/24 interface=ether1\r\n"
	got := trimReply(raw, "/ip address print")
	want := "0   address=10.0.0.1/24 interface=ether1"
	if got != want {
		t.Errorf("trimReply() = %q, want %q", got, want)
	}
}

func TestPromptRegexp(t *testing.T) {
	tests := []struct {
		in    string
		match bool
	}{
		{"[admin@edge-r1] > ", true},
		{"[admin@edge-r1] /ip address> ", true},
		{"[ops@core rtr] > ", true},
		{"mid-output text", false},
		{"[admin@edge-r1] > trailing", false},
	}
	for _, tt := range tests {
		loc := promptRe.FindStringIndex(tt.in)
		got := loc != nil && loc[1] == len(tt.in)
		if got != tt.match {
			t.Errorf("promptRe tail-match %q = %v, want %v", tt.in, got, tt.match)
		}
	}
}
