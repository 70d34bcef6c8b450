//go:build unix

package simphttpd

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestClientGoneDuringRelayKillsProcess(t *testing.T) {
	t.Parallel()
	app, root, hook := scriptApp(t, `echo $$ > "$0.pid"; while :; do printf '0123456789abcdef'; done`,
		func(c *Config) { c.MaxClients = 2 })
	client, done := openConn(t, app)

	_, err := client.Write([]byte("GET /run.sh HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(10*time.Second)))
	got := make([]byte, 4096)
	_, err = io.ReadFull(client, got)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(got), "HTTP/1.1 200 OK\r\n\r\n0123456789abcdef"))
	client.Close()
	waitDone(t, done, 10*time.Second)

	raw, err := os.ReadFile(filepath.Join(root, "run.sh.pid"))
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.ErrorIs(t, unix.Kill(pid, 0), unix.ESRCH, "script still running")

	assert.True(t, hasMessage(hook, "send response error"))
	assert.Equal(t, int64(0), app.Stats().InFlight)
	require.True(t, app.admission.permits.TryAcquire(2), "permit not released")
	app.admission.permits.Release(2)
}
