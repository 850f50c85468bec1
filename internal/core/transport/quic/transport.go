package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("core/transport/quic")

// Name 传输名称
const Name = "quic"

// Config QUIC 传输配置
type Config struct {
	// MaxIdleTimeout 最大空闲超时
	MaxIdleTimeout time.Duration

	// KeepAlivePeriod KeepAlive 周期
	KeepAlivePeriod time.Duration

	// AcceptTimeout 入站连接等待首条流的超时
	AcceptTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
		AcceptTimeout:   10 * time.Second,
	}
}

// Transport QUIC 传输
type Transport struct {
	config Config
	tls    *tls.Config
	quic   *quic.Config
}

var _ transportif.Listener = (*Transport)(nil)

// New 创建 QUIC 传输
func New(config Config) (*Transport, error) {
	tlsConf, err := generateTLSConfig()
	if err != nil {
		return nil, err
	}
	return &Transport{
		config: config,
		tls:    tlsConf,
		quic: &quic.Config{
			MaxIdleTimeout:  config.MaxIdleTimeout,
			KeepAlivePeriod: config.KeepAlivePeriod,
		},
	}, nil
}

// Name 实现 transportif.Transport
func (t *Transport) Name() string { return Name }

// Dial 实现 transportif.Transport
func (t *Transport) Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	conn, err := quic.DialAddr(ctx, addr, t.tls, t.quic)
	if err != nil {
		return nil, fmt.Errorf("%w: dial quic %s: %w", types.ErrTransport, addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("%w: open quic stream: %w", types.ErrTransport, err)
	}
	return newConn(conn, stream), nil
}

// Listen 实现 transportif.Listener
func (t *Transport) Listen(ctx context.Context, opts transportif.ListenOptions, onConn transportif.ConnHandler) (string, func() error, error) {
	ln, err := quic.ListenAddr(net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)), t.tls, t.quic)
	if err != nil {
		return "", nil, fmt.Errorf("%w: listen quic: %w", types.ErrTransport, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.acceptLoop(loopCtx, ln, onConn)
	}()

	var once sync.Once
	stop := func() error {
		var err error
		once.Do(func() {
			cancel()
			err = ln.Close()
			<-done
		})
		return err
	}
	logger.Info("QUIC 监听", "addr", ln.Addr().String())
	return ln.Addr().String(), stop, nil
}

func (t *Transport) acceptLoop(ctx context.Context, ln *quic.Listener, onConn transportif.ConnHandler) {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if !errors.Is(err, quic.ErrServerClosed) && ctx.Err() == nil {
				logger.Warn("accept 失败", "err", err)
			}
			return
		}
		go t.acceptStream(ctx, conn, onConn)
	}
}

// acceptStream 等待对端打开首条流
func (t *Transport) acceptStream(ctx context.Context, conn quic.Connection, onConn transportif.ConnHandler) {
	ctx, cancel := context.WithTimeout(ctx, t.config.AcceptTimeout)
	defer cancel()
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		logger.Debug("等待 QUIC 流失败", "remote", conn.RemoteAddr().String(), "err", err)
		_ = conn.CloseWithError(0, "no stream")
		return
	}
	onConn(newConn(conn, stream))
}
