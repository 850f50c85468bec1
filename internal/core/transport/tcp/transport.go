package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	tec "github.com/jbenet/go-temp-err-catcher"

	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("core/transport/tcp")

// Name 传输名称
const Name = "tcp"

// Config TCP 传输配置
type Config struct {
	// DialTimeout 拨号超时
	DialTimeout time.Duration

	// KeepAlive TCP KeepAlive 周期，0 表示系统默认
	KeepAlive time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DialTimeout: 30 * time.Second,
		KeepAlive:   15 * time.Second,
	}
}

// Transport TCP 传输
type Transport struct {
	config Config
}

var _ transportif.Listener = (*Transport)(nil)

// New 创建 TCP 传输
func New(config Config) *Transport {
	return &Transport{config: config}
}

// Name 实现 transportif.Transport
func (t *Transport) Name() string { return Name }

// Dial 实现 transportif.Transport
func (t *Transport) Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	d := net.Dialer{Timeout: t.config.DialTimeout, KeepAlive: t.config.KeepAlive}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial tcp %s: %w", types.ErrTransport, addr, err)
	}
	setOptions(conn)
	return conn, nil
}

// Listen 实现 transportif.Listener
func (t *Transport) Listen(ctx context.Context, opts transportif.ListenOptions, onConn transportif.ConnHandler) (string, func() error, error) {
	lc := net.ListenConfig{KeepAlive: t.config.KeepAlive}
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)))
	if err != nil {
		return "", nil, fmt.Errorf("%w: listen tcp: %w", types.ErrTransport, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		acceptLoop(ln, onConn)
	}()

	var once sync.Once
	stop := func() error {
		var err error
		once.Do(func() {
			err = ln.Close()
			<-done
		})
		return err
	}
	logger.Info("TCP 监听", "addr", ln.Addr().String())
	return ln.Addr().String(), stop, nil
}

// acceptLoop 接受连接直到监听器关闭，临时错误退避后重试
func acceptLoop(ln net.Listener, onConn transportif.ConnHandler) {
	var catcher tec.TempErrCatcher
	for {
		conn, err := ln.Accept()
		if err != nil {
			if catcher.IsTemporary(err) {
				logger.Debug("accept 临时错误，重试", "err", err)
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				logger.Warn("accept 失败", "err", err)
			}
			return
		}
		catcher.Reset()
		setOptions(conn)
		go onConn(conn)
	}
}

func setOptions(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
