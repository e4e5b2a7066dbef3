package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func startWatcher(t *testing.T, dir string, h Handler, opts ...Option) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := New(dir, h, append([]Option{WithSettle(60 * time.Millisecond)}, opts...)...)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for document")
		return ""
	}
}

func TestWatcher_HandlesExistingAndNewDocuments(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.md")
	require.NoError(t, os.WriteFile(existing, []byte("# Reqs"), 0o644))

	got := make(chan string, 4)
	startWatcher(t, dir, func(_ context.Context, path string) error {
		got <- path
		return nil
	})

	assert.Equal(t, existing, recv(t, got))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.exe"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0o644))
	added := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(added, []byte("The system shall export CSV."), 0o644))

	assert.Equal(t, added, recv(t, got))

	select {
	case p := <-got:
		t.Fatalf("unexpected document %s", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_HandlerErrorIsLogged(t *testing.T) {
	dir := t.TempDir()
	core, logs := observer.New(zap.ErrorLevel)

	called := make(chan string, 2)
	startWatcher(t, dir, func(_ context.Context, path string) error {
		called <- path
		return errors.New("model unavailable")
	}, WithLogger(zap.New(core)))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("req"), 0o644))
	recv(t, called)

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("document processing failed").Len() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("req"), 0o644))
	assert.Equal(t, filepath.Join(dir, "b.txt"), recv(t, called))
}

func TestAccept(t *testing.T) {
	w := New(t.TempDir(), nil)
	tests := map[string]bool{
		"requirements.docx":   true,
		"requirements.DOC":    true,
		"notes.md":            true,
		"notes.txt":           true,
		"image.png":           false,
		".draft.txt":          false,
		"~$requirements.docx": false,
		"no_extension":        false,
	}
	for name, want := range tests {
		assert.Equal(t, want, w.accept(name), name)
	}
}

func TestWatcher_IgnoreFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".storyignore"), []byte("draft-*\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "draft-1.md"), []byte("# WIP"), 0o644))
	final := filepath.Join(dir, "final.md")
	require.NoError(t, os.WriteFile(final, []byte("# Reqs"), 0o644))

	got := make(chan string, 4)
	startWatcher(t, dir, func(_ context.Context, path string) error {
		got <- path
		return nil
	})

	assert.Equal(t, final, recv(t, got))

	select {
	case p := <-got:
		t.Fatalf("ignored document handled: %s", p)
	case <-time.After(200 * time.Millisecond):
	}
}
