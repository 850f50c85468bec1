package quic

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
)

// TestTransport_DialListen 测试监听与拨号往返
func TestTransport_DialListen(t *testing.T) {
	tr, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "quic", tr.Name())

	accepted := make(chan io.ReadWriteCloser, 1)
	addr, stop, err := tr.Listen(context.Background(), transportif.ListenOptions{Host: "127.0.0.1"}, func(c io.ReadWriteCloser) {
		accepted <- c
	})
	require.NoError(t, err)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := tr.Dial(ctx, addr)
	require.NoError(t, err)
	defer conn.Close()

	// 流在首次写入后才对端可见
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	var server io.ReadWriteCloser
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("no inbound connection")
	}
	defer server.Close()

	buf := make([]byte, 4)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	_, err = server.Write([]byte("pong"))
	require.NoError(t, err)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))
}

// TestConn_CloseWrite 测试半关闭
func TestConn_CloseWrite(t *testing.T) {
	tr, err := New(DefaultConfig())
	require.NoError(t, err)

	accepted := make(chan io.ReadWriteCloser, 1)
	addr, stop, err := tr.Listen(context.Background(), transportif.ListenOptions{Host: "127.0.0.1"}, func(c io.ReadWriteCloser) {
		accepted <- c
	})
	require.NoError(t, err)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := tr.Dial(ctx, addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, conn.(*Conn).CloseWrite())

	server := <-accepted
	defer server.Close()
	data, err := io.ReadAll(server)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

// TestGenerateTLSConfig 测试自签名证书配置
func TestGenerateTLSConfig(t *testing.T) {
	conf, err := generateTLSConfig()
	require.NoError(t, err)
	require.Len(t, conf.Certificates, 1)
	assert.Equal(t, []string{alpn}, conf.NextProtos)
	assert.True(t, conf.InsecureSkipVerify)
}
