package logger

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sha5b/DynamiCrafter/pkg/config"
)

func TestNew(t *testing.T) {
	cfg := &config.LoggingConfig{Level: "debug"}
	log, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if log == nil {
		t.Fatal("expected logger instance")
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("expected global level debug, got %s", zerolog.GlobalLevel())
	}
}

func TestNewInvalidLevel(t *testing.T) {
	cfg := &config.LoggingConfig{Level: "shouty"}
	if _, err := New(cfg); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"disabled", zerolog.Disabled},
		{"INFO", zerolog.InfoLevel},
	}
	for _, c := range cases {
		got, err := parseLogLevel(c.input)
		if err != nil {
			t.Errorf("parseLogLevel(%q) returned error: %v", c.input, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", c.input, got, c.want)
		}
	}

	if _, err := parseLogLevel("bogus"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestFileOutput(t *testing.T) {
	file := t.TempDir() + "/logs/app.log"
	cfg := &config.LoggingConfig{Level: "info", File: file}

	log, err := New(cfg)
	if err != nil {
		t.Fatalf("New with file output failed: %v", err)
	}
	log.Info("hello")
}

func TestTestLoggerCapture(t *testing.T) {
	tl := NewTestLogger()

	tl.Info("starting download")
	tl.WarnWithFields("retrying", map[string]interface{}{"attempt": 2})
	tl.WithError(errors.New("boom")).Error("download failed")
	tl.WithField("variant", "dynamicrafter_512_v1").Info("checkpoint ready")

	msgs := tl.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}

	if !tl.HasMessage("starting download") {
		t.Error("expected captured info message")
	}

	warns := tl.MessagesByLevel("WARN")
	if len(warns) != 1 {
		t.Fatalf("expected 1 warn message, got %d", len(warns))
	}
	if warns[0].Fields["attempt"] != 2 {
		t.Errorf("expected attempt field, got %v", warns[0].Fields)
	}

	errs := tl.MessagesByLevel("ERROR")
	if len(errs) != 1 {
		t.Fatalf("expected 1 error message, got %d", len(errs))
	}
	if errs[0].Fields["error"] != "boom" {
		t.Errorf("expected error field, got %v", errs[0].Fields)
	}

	infos := tl.MessagesByLevel("INFO")
	if infos[1].Fields["variant"] != "dynamicrafter_512_v1" {
		t.Errorf("expected variant field, got %v", infos[1].Fields)
	}

	tl.Reset()
	if len(tl.Messages()) != 0 {
		t.Error("expected no messages after Reset")
	}
}

func TestChainedFields(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("a", 1).WithField("b", 2).Info("chained")

	msgs := tl.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Fields["a"] != 1 || msgs[0].Fields["b"] != 2 {
		t.Errorf("expected both chained fields, got %v", msgs[0].Fields)
	}
}
