package webrtc

import (
	"sync"

	"github.com/pion/datachannel"
	"github.com/pion/webrtc/v4"
)

// maxMessageSize 单条数据通道消息的最大长度
const maxMessageSize = 16 * 1024

// Conn 分离后的数据通道字节流
type Conn struct {
	dc datachannel.ReadWriteCloser
	pc *webrtc.PeerConnection

	rmu  sync.Mutex
	rbuf []byte
	rem  []byte

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newConn(dc datachannel.ReadWriteCloser, pc *webrtc.PeerConnection) *Conn {
	return &Conn{dc: dc, pc: pc, rbuf: make([]byte, maxMessageSize)}
}

// Read 实现 io.Reader，消息大于 p 时剩余部分留给下次读取
func (c *Conn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if len(c.rem) == 0 {
		n, err := c.dc.Read(c.rbuf)
		if err != nil {
			return 0, err
		}
		c.rem = c.rbuf[:n]
	}
	n := copy(p, c.rem)
	c.rem = c.rem[n:]
	return n, nil
}

// Write 实现 io.Writer
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	written := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxMessageSize {
			chunk = chunk[:maxMessageSize]
		}
		n, err := c.dc.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		p = p[len(chunk):]
	}
	return written, nil
}

// Close 关闭数据通道与 PeerConnection
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.dc.Close()
		c.closeErr = c.pc.Close()
	})
	return c.closeErr
}
