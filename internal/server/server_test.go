package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/motsognir/motsognir-go/extmap"
	"github.com/motsognir/motsognir-go/internal/cgi"
	"github.com/motsognir/motsognir-go/internal/config"
	"github.com/motsognir/motsognir-go/internal/diag"
	"github.com/motsognir/motsognir-go/internal/router"
)

func TestServeHandlesOneConnection(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("hello\n"), 0o644))

	cfg := &config.Config{GopherRoot: root, Hostname: "example.org", Port: 70, CapsEnabled: true}
	rt := router.New(cfg, extmap.Default(), cgi.New(nil))
	d := diag.New("test", 0)
	s := New(cfg, rt, d)

	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx, ln)

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("/readme.txt\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _ := conn.Read(buf)
	assert.Contains(t, string(buf[:n]), "hello")
}
