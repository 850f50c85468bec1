package quic

import (
	"sync"

	"github.com/quic-go/quic-go"
)

// Conn 一条 QUIC 流及其所属连接
type Conn struct {
	quic.Stream
	conn quic.Connection

	closeOnce sync.Once
}

func newConn(conn quic.Connection, stream quic.Stream) *Conn {
	return &Conn{Stream: stream, conn: conn}
}

// CloseWrite 关闭写方向（半关闭）
func (c *Conn) CloseWrite() error {
	return c.Stream.Close()
}

// Close 关闭流与连接
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.Stream.Close()
		err = c.conn.CloseWithError(0, "closed")
	})
	return err
}
