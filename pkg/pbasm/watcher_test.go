package pbasm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watcherTestSource = `# Greeter:AI

A greeter.

## SayHi() -> str
Triggers: hi
Say hello.
`

func TestWatcherReportsReparsedProgramOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.pbasm")
	require.NoError(t, os.WriteFile(path, []byte(watcherTestSource), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		prog *Program
		err  error
	}
	changes := make(chan outcome, 1)
	w, err := Watch(ctx, []string{path}, func(changed string, prog *Program, parseErr error) {
		changes <- outcome{prog: prog, err: parseErr}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(watcherTestSource+"\n## SayBye() -> str\nSay goodbye.\n"), 0o644))

	select {
	case got := <-changes:
		require.NoError(t, got.err)
		require.NotNil(t, got.prog)
		klass, ok := got.prog.Find("Greeter")
		require.True(t, ok)
		assert.Len(t, klass.Playbooks, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reported the edit")
	}
}

func TestWatcherReportsParseBreakage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.pbasm")
	require.NoError(t, os.WriteFile(path, []byte(watcherTestSource), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 1)
	w, err := Watch(ctx, []string{path}, func(changed string, prog *Program, parseErr error) {
		errs <- parseErr
	})
	require.NoError(t, err)
	defer w.Close()

	// No agent sections at all: Parse must fail.
	require.NoError(t, os.WriteFile(path, []byte("just prose, no sections\n"), 0o644))

	select {
	case parseErr := <-errs:
		assert.Error(t, parseErr)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reported the edit")
	}
}
