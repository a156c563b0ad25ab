// Package logging sets up structured, optionally rotating output for
// the whole process. Grounded on the teacher's internal/logging
// package: a custom logrus.Formatter with a fixed field order, a
// SetupBaseLogger guarded by sync.Once, gin's writers redirected
// through logrus, and lumberjack-backed rotation when file logging is
// enabled.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var setupOnce sync.Once

// Formatter renders "[timestamp] [reqID] [level] message fields". The
// caller's file:line is not included.
type Formatter struct{}

var logFieldOrder = []string{"request_id", "account_id", "status", "attempt"}

func (Formatter) Format(entry *log.Entry) ([]byte, error) {
	reqID, _ := entry.Data["request_id"].(string)
	var b bytes.Buffer
	fmt.Fprintf(&b, "[%s] [%s] [%s] %s",
		entry.Time.Format("2006-01-02T15:04:05.000Z07:00"),
		reqID,
		entry.Level.String(),
		entry.Message,
	)
	for _, k := range logFieldOrder {
		if k == "request_id" {
			continue
		}
		if v, ok := entry.Data[k]; ok {
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// SetupBaseLogger installs the Formatter and redirects gin's writers
// through logrus. Safe to call multiple times; only the first call
// takes effect.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetFormatter(Formatter{})
		log.SetLevel(log.InfoLevel)
		gin.DefaultWriter = log.StandardLogger().Writer()
		gin.DefaultErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)
	})
}

// ConfigureOutput switches the logger's output between stdout and a
// rotating file, matching the teacher's lumberjack defaults of a
// 10MB-per-file cap with no forced age/backup limit. No total-size cap
// is applied: the logs-max-total-size-mb config value is not read.
func ConfigureOutput(toFile bool, dir string) error {
	if !toFile {
		log.SetOutput(os.Stdout)
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var w io.Writer = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "proxy.log"),
		MaxSize:    10,
		MaxBackups: 0,
		MaxAge:     0,
		Compress:   false,
	}
	log.SetOutput(w)
	return nil
}
