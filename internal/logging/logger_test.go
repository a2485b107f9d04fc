package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{input: "ERROR", expected: LevelError},
		{input: "warn", expected: LevelWarn},
		{input: " Info ", expected: LevelInfo},
		{input: "debug", expected: LevelDebug},
		{input: "TRACE", expected: LevelTrace},
		{input: "verbose", expected: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if level != tt.expected {
				t.Errorf("Expected level %v, got %v", tt.expected, level)
			}
		})
	}
}

func TestPrefixedLoggerSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger("TEST")
	root.SetOutput(&buf)
	child := root.WithPrefix("child")

	child.Debug("hidden at info")
	if buf.Len() != 0 {
		t.Fatalf("Expected no output at INFO level, got %q", buf.String())
	}

	root.SetLevel(LevelDebug)
	child.Debug("visible at %s", "debug")

	out := buf.String()
	if !strings.Contains(out, "[DEBUG] child: visible at debug") {
		t.Errorf("Unexpected log line: %q", out)
	}
}

func TestLevelString(t *testing.T) {
	if LevelWarn.String() != "WARN" {
		t.Errorf("Expected WARN, got %s", LevelWarn.String())
	}
	if LogLevel(42).String() != "LEVEL(42)" {
		t.Errorf("Unexpected name for unknown level: %s", LogLevel(42).String())
	}
}
