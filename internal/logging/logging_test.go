package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func TestInit_JSON(t *testing.T) {
	var buf bytes.Buffer
	Init(&Options{Level: "warn", Format: FormatJSON, Writer: &buf})
	defer InitDefault()

	log.Info().Msg("dropped")
	log.Warn().Str("pk", "AGREEMENT#a1").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &line); err != nil {
		t.Fatalf("line is not json: %v", err)
	}
	if line["message"] != "kept" || line["pk"] != "AGREEMENT#a1" {
		t.Errorf("unexpected line: %v", line)
	}
}

func TestInit_FromViper(t *testing.T) {
	viper.Set(LevelKey, "DEBUG")
	viper.Set(FormatKey, FormatConsole)
	viper.Set(NoColorKey, true)
	defer viper.Reset()
	defer InitDefault()

	Init(nil)
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %s", zerolog.GlobalLevel())
	}
}

func TestInit_UnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(&Options{Level: "chatty", Writer: &buf, NoColor: true})
	defer InitDefault()

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %s", zerolog.GlobalLevel())
	}
	log.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("console output missing message: %q", buf.String())
	}
}
