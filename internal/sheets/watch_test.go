// SPDX-License-Identifier: MIT

package sheets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/renameio/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatchReloadsOnRename(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")
	require.NoError(t, os.WriteFile(path, testMetadata(), 0o640))

	h, err := NewHolder(path)
	require.NoError(t, err)
	require.Equal(t, 3, h.Current().Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.Watch(ctx)
	}()

	// Atomic rename-over, the way the daemon's own writers replace files.
	updated := []byte(fmt.Sprintf(`{"type":"FeatureCollection","features":[%s]}`,
		feature(201, "sheet_z", "OS One Inch, Published 1920", -4.0, 54.0, -3.0, 55.0)))
	require.NoError(t, renameio.WriteFile(path, updated, 0o640))

	require.Eventually(t, func() bool {
		return h.Current().Len() == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "sheet_z", h.Current().Sheets()[0].Name)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}
