package main

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func newBufferLogger(level LogLevel) (*LeveledLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLeveledLogger(log.New(&buf, "", 0), level), &buf
}

func TestLeveledLogger_Filtering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug") || strings.Contains(out, "info") {
		t.Errorf("messages below WARN should be dropped, got %q", out)
	}
	if !strings.Contains(out, "[WARN] warn 3") || !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("expected WARN and ERROR lines, got %q", out)
	}
}

func TestLeveledLogger_None(t *testing.T) {
	l, buf := newBufferLogger(LogLevelNone)
	l.Error("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestLeveledLogger_DebugCAN(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)

	l.DebugCAN("TX", 0x400, []byte{0x20, 0x04, 0, 0, 0, 0, 0xFF, 0xFF}, 6)

	expected := "[DEBUG] CAN TX: ID=0x400 Len=6 Data=[20 04 00 00 00 00]\n"
	if buf.String() != expected {
		t.Errorf("expected %q, got %q", expected, buf.String())
	}

	buf.Reset()
	l.SetLevel(LogLevelInfo)
	l.DebugCAN("RX", 0x500, []byte{1}, 1)
	if buf.Len() != 0 {
		t.Errorf("DebugCAN should be silent above DEBUG, got %q", buf.String())
	}
}
