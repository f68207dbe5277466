package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   zerolog.Level
		wantOK bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{" WARN ", zerolog.WarnLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"verbose", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseLevel(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNew_JSONComponent(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	var buf bytes.Buffer
	logger := Component(New(Options{Level: "debug", Format: "json", Output: &buf}), "engine")

	logger.Debug().Str("state", "ready").Msg("channel ready")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if line["component"] != "engine" {
		t.Errorf("component = %v, want engine", line["component"])
	}
	if line["message"] != "channel ready" {
		t.Errorf("message = %v", line["message"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Format: "json", Output: &buf})

	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("info line written at warn level: %q", buf.String())
	}
}

func TestNew_EnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	var buf bytes.Buffer
	logger := New(Options{Level: "debug", Format: "json", Output: &buf})

	logger.Warn().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("warn line written with env level error: %q", buf.String())
	}
}

func TestInit_InstallsGlobal(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "json", Output: &buf})
	log.Info().Msg("storage: ready")

	if !bytes.Contains(buf.Bytes(), []byte("storage: ready")) {
		t.Errorf("global logger wrote %q", buf.String())
	}
}
