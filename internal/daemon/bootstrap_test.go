package daemon

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartDaemonMissingBinary(t *testing.T) {
	err := StartDaemon(filepath.Join(t.TempDir(), "no-such-binary"))
	assert.Error(t, err)
}

func TestStartDaemonSpawnsDetached(t *testing.T) {
	// /usr/bin/true ignores the "daemon" argument and exits immediately,
	// which is enough to verify the spawn path works.
	err := StartDaemon("/usr/bin/true")
	assert.NoError(t, err)
}
