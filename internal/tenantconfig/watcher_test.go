package tenantconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestPushTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config", "tenants", "XM", "uaa", "uaa.yml"), "x: 1")
	writeFile(t, filepath.Join(root, "config", "tenants", "AB", "uaa", "uaa.yml"), "x: 2")

	rec := newRecorder("props", "/config/tenants/{tenant}/uaa/uaa.yml")
	n, err := PushTree(context.Background(), root, NewDispatcher(rec))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	raw, ok := rec.get("/config/tenants/AB/uaa/uaa.yml")
	require.True(t, ok)
	assert.Equal(t, "x: 2", string(raw))
}

func TestWatcher_PushesChanges(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "config", "tenants", "XM", "uaa", "uaa.yml")
	writeFile(t, path, "v: 1")

	rec := newRecorder("props", "/config/tenants/{tenant}/uaa/uaa.yml")
	w, err := NewWatcher(root, NewDispatcher(rec), WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	rel := "/config/tenants/XM/uaa/uaa.yml"
	raw, ok := rec.get(rel)
	require.True(t, ok, "initial push")
	assert.Equal(t, "v: 1", string(raw))

	writeFile(t, path, "v: 2")
	require.Eventually(t, func() bool {
		raw, _ := rec.get(rel)
		return string(raw) == "v: 2"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		raw, ok := rec.get(rel)
		return ok && len(raw) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
