package unix

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/kvdown/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortDir returns a temp dir whose paths fit the socket path limit
func shortDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "kvdown")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(shortDir(t), "rpc.sock")

	// a socket file left behind by a server that did not clean up
	stale, err := net.Listen("unix", path)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())
	_, err = os.Lstat(path)
	require.NoError(t, err)

	listener, err := (&serverConnector{}).Listen(common.ServerConfig{Endpoint: path})
	require.NoError(t, err)
	require.NoError(t, listener.Close())

	_, err = os.Lstat(path)
	assert.True(t, os.IsNotExist(err), "socket is removed on close")
}

func TestListenKeepsOtherFiles(t *testing.T) {
	path := filepath.Join(shortDir(t), "data.db")
	require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o644))

	_, err := (&serverConnector{}).Listen(common.ServerConfig{Endpoint: path})
	assert.ErrorContains(t, err, "is not a socket")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep me"), data)
}

func TestListenWithoutPath(t *testing.T) {
	_, err := (&serverConnector{}).Listen(common.ServerConfig{})
	assert.Error(t, err)
}
