package muxer

import (
	"errors"
	"io"
	"sync"

	"github.com/hashicorp/yamux"
)

// Channel 多路复用连接上的一条逻辑双工通道
//
// 实现 io.ReadWriteCloser；CloseWrite 只关闭本端写方向。
type Channel struct {
	id string
	m  *Muxer

	mu          sync.Mutex
	out         *yamux.Stream
	in          *yamux.Stream
	inReady     chan struct{}
	writeClosed bool
	localClosed bool

	closeOnce sync.Once
	done      chan struct{}
}

func newChannel(id string, m *Muxer) *Channel {
	return &Channel{
		id:      id,
		m:       m,
		inReady: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID 返回通道名称
func (c *Channel) ID() string {
	return c.id
}

// Done 通道关闭（本端关闭或连接终止）时关闭
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// attach 挂接入站流，已挂接时返回 false
func (c *Channel) attach(s *yamux.Stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.in != nil || c.isClosed() {
		return false
	}
	c.in = s
	close(c.inReady)
	return true
}

func (c *Channel) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Read 读取对端写入的数据
//
// 对端尚未写入时阻塞；对端关闭写方向后返回 io.EOF。连接终止后仍可读完
// 已经到达的数据，本端 Close 之后不可再读。
func (c *Channel) Read(p []byte) (int, error) {
	select {
	case <-c.inReady:
	case <-c.done:
	}
	c.mu.Lock()
	in, local := c.in, c.localClosed
	c.mu.Unlock()
	if local || in == nil {
		return 0, c.closedErr()
	}

	n, err := in.Read(p)
	if err != nil && c.m.isDone() && errors.Is(c.m.err, ErrConnectionLost) {
		// 连接异常终止时 yamux 流只返回 EOF，改为返回真正原因
		return n, c.m.err
	}
	return n, err
}

// Write 写入数据，首次写入时打开出站流
func (c *Channel) Write(p []byte) (int, error) {
	s, err := c.outStream()
	if err != nil {
		return 0, err
	}
	n, err := s.Write(p)
	if err != nil && c.m.isDone() {
		return n, c.m.err
	}
	return n, err
}

func (c *Channel) outStream() (*yamux.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed() {
		return nil, c.closedErr()
	}
	if c.writeClosed {
		return nil, ErrChannelClosed
	}
	if c.out == nil {
		s, err := c.m.openStream(c.id)
		if err != nil {
			return nil, err
		}
		c.out = s
	}
	return c.out, nil
}

// CloseWrite 关闭本端写方向，对端读取得到 io.EOF
func (c *Channel) CloseWrite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeWriteLocked()
}

func (c *Channel) closeWriteLocked() error {
	if c.writeClosed {
		return nil
	}
	c.writeClosed = true
	if c.out == nil {
		if c.m.isDone() {
			return nil
		}
		// 从未写入也要让对端看到 EOF
		s, err := c.m.openStream(c.id)
		if err != nil {
			return err
		}
		c.out = s
	}
	return c.out.Close()
}

// Close 关闭通道，不会关闭底层连接
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		// 双方都未打开过流时没有需要通知的对端
		if c.out != nil || c.in != nil {
			err = c.closeWriteLocked()
		}
		in := c.in
		c.localClosed = true
		close(c.done)
		c.mu.Unlock()

		if in != nil {
			// 排空对端剩余数据，避免其写入阻塞在窗口上
			go func() {
				_, _ = io.Copy(io.Discard, in)
				_ = in.Close()
			}()
		}
		c.m.release(c)
	})
	return err
}

// terminate 连接终止时关闭通道
func (c *Channel) terminate() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.mu.Unlock()
	})
}

func (c *Channel) closedErr() error {
	if c.m.isDone() {
		return c.m.err
	}
	return ErrChannelClosed
}
