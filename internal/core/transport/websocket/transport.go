package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("core/transport/websocket")

// Name 传输名称
const Name = "websocket"

// Config WebSocket 传输配置
type Config struct {
	// Path 默认 HTTP 升级路径
	Path string

	// HandshakeTimeout 握手超时
	HandshakeTimeout time.Duration

	// ReadBufferSize 读缓冲区大小
	ReadBufferSize int

	// WriteBufferSize 写缓冲区大小
	WriteBufferSize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Path:             "/pxp",
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
}

// Transport WebSocket 传输
type Transport struct {
	config Config
	dialer *websocket.Dialer
}

var _ transportif.Listener = (*Transport)(nil)

// New 创建 WebSocket 传输
func New(config Config) *Transport {
	return &Transport{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
	}
}

// Name 实现 transportif.Transport
func (t *Transport) Name() string { return Name }

// Dial 实现 transportif.Transport，addr 为 ws:// 或 wss:// URL
func (t *Transport) Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	ws, resp, err := t.dialer.DialContext(ctx, addr, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial websocket %s: %w", types.ErrTransport, addr, err)
	}
	return newConn(ws), nil
}

// Listen 实现 transportif.Listener，返回可直接拨号的 ws:// URL
func (t *Transport) Listen(ctx context.Context, opts transportif.ListenOptions, onConn transportif.ConnHandler) (string, func() error, error) {
	path := opts.Path
	if path == "" {
		path = t.config.Path
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)))
	if err != nil {
		return "", nil, fmt.Errorf("%w: listen websocket: %w", types.ErrTransport, err)
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: t.config.HandshakeTimeout,
		ReadBufferSize:   t.config.ReadBufferSize,
		WriteBufferSize:  t.config.WriteBufferSize,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("websocket 升级失败", "remote", r.RemoteAddr, "err", err)
			return
		}
		go onConn(newConn(ws))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: t.config.HandshakeTimeout}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("websocket 服务退出", "err", err)
		}
	}()

	addr := "ws://" + ln.Addr().String() + path
	logger.Info("WebSocket 监听", "addr", addr)
	return addr, srv.Close, nil
}
