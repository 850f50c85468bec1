package muxer

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/multiformats/go-varint"

	"github.com/dep2p/go-pxp/pkg/lib/log"
)

var logger = log.Logger("core/muxer")

// Muxer 一条物理连接上的通道多路复用器
type Muxer struct {
	session   *yamux.Session
	incoming  bool
	cfg       *Config
	onChannel func(*Channel)

	mu       sync.Mutex
	channels map[string]*Channel

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// New 在 conn 上创建多路复用器
//
// incoming 为 true 时作为 yamux server，两端角色必须互补。
func New(conn io.ReadWriteCloser, incoming bool, opts ...Option) (*Muxer, error) {
	m := &Muxer{
		incoming: incoming,
		cfg:      DefaultConfig(),
		channels: make(map[string]*Channel),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	var (
		session *yamux.Session
		err     error
	)
	if incoming {
		session, err = yamux.Server(conn, m.cfg.yamuxConfig())
	} else {
		session, err = yamux.Client(conn, m.cfg.yamuxConfig())
	}
	if err != nil {
		return nil, fmt.Errorf("创建 yamux 会话失败: %w", err)
	}
	m.session = session

	go m.acceptLoop()

	return m, nil
}

// Channel 获取或创建指定名称的通道
//
// 同一名称在通道关闭前总是返回同一个 Channel。
func (m *Muxer) Channel(id string) (*Channel, error) {
	if id == "" || len(id) > m.cfg.MaxChannelIDLen {
		return nil, ErrInvalidChannelID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isDone() {
		return nil, m.err
	}
	if ch, ok := m.channels[id]; ok {
		return ch, nil
	}
	ch := newChannel(id, m)
	m.channels[id] = ch
	return ch, nil
}

// NumChannels 返回当前通道数
func (m *Muxer) NumChannels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Incoming 是否为 server 角色
func (m *Muxer) Incoming() bool {
	return m.incoming
}

// Close 关闭多路复用器与底层连接
func (m *Muxer) Close() error {
	m.shutdown(ErrMuxerClosed)
	return nil
}

// Done 关闭时关闭的通道
func (m *Muxer) Done() <-chan struct{} {
	return m.done
}

// Err 返回终止原因，未关闭时为 nil
func (m *Muxer) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

func (m *Muxer) isDone() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// shutdown 终止多路复用器并以 err 终止所有通道
func (m *Muxer) shutdown(err error) {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.err = err
		close(m.done)
		channels := m.channels
		m.channels = make(map[string]*Channel)
		m.mu.Unlock()

		for _, ch := range channels {
			ch.terminate()
		}
		if cerr := m.session.Close(); cerr != nil {
			logger.Debug("关闭 yamux 会话失败", "err", cerr)
		}
	})
}

// acceptLoop 接受对端打开的流
func (m *Muxer) acceptLoop() {
	for {
		s, err := m.session.AcceptStream()
		if err != nil {
			switch {
			case errors.Is(err, yamux.ErrSessionShutdown), errors.Is(err, io.EOF):
				err = ErrMuxerClosed
			default:
				err = fmt.Errorf("%w: %v", ErrConnectionLost, err)
			}
			m.shutdown(err)
			return
		}
		go m.handleInbound(s)
	}
}

// handleInbound 读取流首部并挂接到同名通道
func (m *Muxer) handleInbound(s *yamux.Stream) {
	_ = s.SetReadDeadline(time.Now().Add(m.cfg.HeaderTimeout))
	id, err := readHeader(s, m.cfg.MaxChannelIDLen)
	_ = s.SetReadDeadline(time.Time{})
	if err != nil {
		logger.Debug("丢弃首部无效的入站流", "err", err)
		_ = s.Close()
		return
	}

	m.mu.Lock()
	if m.isDone() {
		m.mu.Unlock()
		_ = s.Close()
		return
	}
	ch, exists := m.channels[id]
	if !exists {
		ch = newChannel(id, m)
		m.channels[id] = ch
	}
	m.mu.Unlock()

	if !ch.attach(s) {
		logger.Debug("通道已有入站流，丢弃重复流", "channel", id)
		_ = s.Close()
		return
	}
	if !exists && m.onChannel != nil {
		m.onChannel(ch)
	}
}

// release 通道关闭后从表中移除
func (m *Muxer) release(ch *Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.channels[ch.id]; ok && cur == ch {
		delete(m.channels, ch.id)
	}
}

// openStream 打开出站流并写入首部
func (m *Muxer) openStream(id string) (*yamux.Stream, error) {
	s, err := m.session.OpenStream()
	if err != nil {
		if m.isDone() {
			return nil, m.err
		}
		return nil, fmt.Errorf("打开流失败: %w", err)
	}
	if err := writeHeader(s, id); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("写入通道首部失败: %w", err)
	}
	return s, nil
}

// ============================================================================
//                              首部编解码
// ============================================================================

func writeHeader(w io.Writer, id string) error {
	buf := append(varint.ToUvarint(uint64(len(id))), id...)
	_, err := w.Write(buf)
	return err
}

func readHeader(r io.Reader, maxLen int) (string, error) {
	n, err := varint.ReadUvarint(byteReader{r})
	if err != nil {
		return "", err
	}
	if n == 0 || n > uint64(maxLen) {
		return "", ErrInvalidChannelID
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// byteReader 逐字节读取，避免缓冲吞掉首部之后的数据
type byteReader struct {
	r io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var one [1]byte
	if _, err := io.ReadFull(b.r, one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}
