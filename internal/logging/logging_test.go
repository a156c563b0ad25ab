package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestFormatterOrdersKnownFieldsAndDropsUnknown(t *testing.T) {
	entry := &log.Entry{
		Logger:  log.StandardLogger(),
		Message: "handled request",
		Data: log.Fields{
			"request_id": "req-1",
			"attempt":    2,
			"account_id": "A",
			"mystery":    "ignored",
		},
	}
	entry.Level = log.InfoLevel
	out, err := Formatter{}.Format(entry)
	if err != nil {
		t.Fatal(err)
	}
	line := string(out)
	if !strings.Contains(line, "[req-1]") {
		t.Errorf("line = %q, want request id bracketed", line)
	}
	if !strings.Contains(line, "handled request") {
		t.Errorf("line = %q, want the message", line)
	}
	accIdx := strings.Index(line, "account_id=A")
	attIdx := strings.Index(line, "attempt=2")
	if accIdx == -1 || attIdx == -1 || accIdx > attIdx {
		t.Errorf("line = %q, want account_id before attempt per logFieldOrder", line)
	}
	if strings.Contains(line, "mystery") {
		t.Errorf("line = %q, should not render fields outside logFieldOrder", line)
	}
}

func TestConfigureOutputToStdoutRestoresDefault(t *testing.T) {
	if err := ConfigureOutput(false, ""); err != nil {
		t.Fatal(err)
	}
	if log.StandardLogger().Out != os.Stdout {
		t.Error("ConfigureOutput(false, ...) should route output to os.Stdout")
	}
}

func TestConfigureOutputToFileCreatesDirAndWritesLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := ConfigureOutput(true, dir); err != nil {
		t.Fatal(err)
	}
	defer ConfigureOutput(false, "")

	log.Info("a log line")

	path := filepath.Join(dir, "proxy.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file at %s: %v", path, err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty log file contents")
	}
}

func TestSetupBaseLoggerOnlyAppliesOnce(t *testing.T) {
	SetupBaseLogger()
	before := log.StandardLogger().Formatter
	SetupBaseLogger()
	after := log.StandardLogger().Formatter
	if before != after {
		t.Error("SetupBaseLogger should be idempotent via sync.Once")
	}
	if _, ok := after.(Formatter); !ok {
		t.Errorf("formatter = %T, want logging.Formatter", after)
	}
}

func TestFormatterIsDeterministicForSameEntry(t *testing.T) {
	entry := &log.Entry{
		Logger:  log.StandardLogger(),
		Message: "m",
		Data:    log.Fields{"status": 200},
	}
	entry.Level = log.WarnLevel
	a, _ := Formatter{}.Format(entry)
	b, _ := Formatter{}.Format(entry)
	if !bytes.Equal(a, b) {
		t.Error("formatting the same entry twice should be byte-identical modulo timestamp")
	}
}
