package plog

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
		"":        slog.LevelWarn,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		assert.NoError(t, err)
		assert.Equal(t, want, got, "ParseLevel(%q)", input)
	}
}

func TestInitSetsDefaultLogger(t *testing.T) {
	Init(slog.LevelInfo, os.Stderr, "simple")
	assert.NotNil(t, slog.Default())
	assert.Same(t, defaultLogger, slog.Default())
}

func TestOpenLogFileAppends(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test.log"

	f, closeFn, err := OpenLogFile(path)
	assert.NoError(t, err)
	_, err = f.WriteString("first\n")
	assert.NoError(t, err)
	closeFn()

	f2, closeFn2, err := OpenLogFile(path)
	assert.NoError(t, err)
	_, err = f2.WriteString("second\n")
	assert.NoError(t, err)
	closeFn2()

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte("first")))
	assert.True(t, bytes.Contains(data, []byte("second")))
}
