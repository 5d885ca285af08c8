package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, parseLogLevel("bogus"))
}

func TestCustomFormatter(t *testing.T) {
	f := &CustomFormatter{TimestampFormat: "2006"}
	entry := logrus.NewEntry(logrus.New()).WithFields(logrus.Fields{"page": 3, "list": "free"})
	entry.Time = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	entry.Level = logrus.WarnLevel
	entry.Message = "hello"

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Contains(t, string(out), "[2024] [WARN]")
	assert.Contains(t, string(out), "hello list=free page=3\n")
}

func TestInitLoggerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := LogConfig{
		ErrorLogPath: filepath.Join(dir, "err", "error.log"),
		InfoLogPath:  filepath.Join(dir, "info.log"),
		LogLevel:     "debug",
	}
	require.NoError(t, InitLogger(cfg))
	Infof("recovered %d pages", 2)
	Errorf("page %d unreadable", 7)
	WithFields(logrus.Fields{"space": 0}).Debug("flushed")

	info, err := os.ReadFile(cfg.InfoLogPath)
	require.NoError(t, err)
	assert.Contains(t, string(info), "recovered 2 pages")
	assert.Contains(t, string(info), "flushed space=0")

	errs, err := os.ReadFile(cfg.ErrorLogPath)
	require.NoError(t, err)
	assert.Contains(t, string(errs), "page 7 unreadable")
}

func TestTeeToFallsBackToConsole(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	l := newLogger(logrus.InfoLevel, &CustomFormatter{})
	teeTo(l, os.Stderr, filepath.Join(blocker, "sub", "x.log"))
	assert.Equal(t, os.Stderr, l.Out)

	teeTo(l, os.Stderr, "")
	assert.Equal(t, os.Stderr, l.Out)
}
