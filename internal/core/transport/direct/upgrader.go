package direct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("core/transport/direct")

// Name 升级传输名称
const Name = "direct"

// tokenLen uuid 字符串长度
const tokenLen = 36

// tokenTimeout 单个入站连接发送令牌的时限
const tokenTimeout = 5 * time.Second

// ErrBadToken 入站连接的令牌不匹配
var ErrBadToken = errors.New("direct upgrade: token mismatch")

// offerPayload Offer 负载
type offerPayload struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

// Upgrader 直连 TCP 升级器
type Upgrader struct {
	host string
}

var _ transportif.Upgrader = (*Upgrader)(nil)

// New 创建升级器，host 同时作为监听与通告地址
func New(host string) *Upgrader {
	if host == "" {
		host = "127.0.0.1"
	}
	return &Upgrader{host: host}
}

// Transport 实现 transportif.Upgrader
func (u *Upgrader) Transport() string { return Name }

// NewOffer 实现 transportif.Upgrader
func (u *Upgrader) NewOffer(ctx context.Context) (transportif.Offer, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(u.host, "0"))
	if err != nil {
		return nil, fmt.Errorf("%w: direct upgrade listen: %w", types.ErrTransport, err)
	}
	token := uuid.NewString()
	payload, err := json.Marshal(offerPayload{Addr: ln.Addr().String(), Token: token})
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return &offer{ln: ln, token: token, payload: payload}, nil
}

// Accept 实现 transportif.Upgrader
func (u *Upgrader) Accept(_ context.Context, raw json.RawMessage) (transportif.Answer, error) {
	var p offerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("direct upgrade offer: %w", err)
	}
	if p.Addr == "" || len(p.Token) != tokenLen {
		return nil, errors.New("direct upgrade offer: missing addr or token")
	}
	return &answer{offer: p}, nil
}

// ============================================================================
//                              Offer
// ============================================================================

type offer struct {
	ln      net.Listener
	token   string
	payload json.RawMessage

	closeOnce sync.Once
}

func (o *offer) Payload() json.RawMessage { return o.payload }

// Complete 等待响应方拨入并校验令牌
//
// 每个入站连接单独校验，不发送令牌的连接不会阻塞后续连接。
func (o *offer) Complete(ctx context.Context, _ json.RawMessage) (io.ReadWriteCloser, error) {
	defer o.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = o.ln.Close() })
	defer stop()

	verified := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	go func() {
		for {
			conn, err := o.ln.Accept()
			if err != nil {
				acceptErr <- err
				return
			}
			go o.handle(ctx, conn, verified)
		}
	}()

	select {
	case conn := <-verified:
		return conn, nil
	case err := <-acceptErr:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: direct upgrade accept: %w", types.ErrTransport, err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handle 校验一个入站连接，通过后交给 Complete
func (o *offer) handle(ctx context.Context, conn net.Conn, verified chan<- net.Conn) {
	if err := o.verify(ctx, conn); err != nil {
		logger.Debug("丢弃令牌不匹配的连接", "remote", conn.RemoteAddr().String(), "err", err)
		_ = conn.Close()
		return
	}
	select {
	case verified <- conn:
	case <-ctx.Done():
		_ = conn.Close()
	}
}

func (o *offer) verify(ctx context.Context, conn net.Conn) error {
	dl := time.Now().Add(tokenTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(dl) {
		dl = d
	}
	_ = conn.SetReadDeadline(dl)
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, tokenLen)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return err
	}
	if string(buf) != o.token {
		return ErrBadToken
	}
	return nil
}

func (o *offer) Close() error {
	var err error
	o.closeOnce.Do(func() {
		err = o.ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

// ============================================================================
//                              Answer
// ============================================================================

type answer struct {
	offer offerPayload
}

// Payload 直连升级的应答不携带内容
func (a *answer) Payload() json.RawMessage { return json.RawMessage(`{}`) }

// Wait 拨号发起方并写入令牌
func (a *answer) Wait(ctx context.Context) (io.ReadWriteCloser, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", a.offer.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: direct upgrade dial: %w", types.ErrTransport, err)
	}
	if _, err := conn.Write([]byte(a.offer.Token)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: direct upgrade token: %w", types.ErrTransport, err)
	}
	return conn, nil
}

// Close Wait 返回的连接归调用方所有，此处无需释放
func (a *answer) Close() error {
	return nil
}
