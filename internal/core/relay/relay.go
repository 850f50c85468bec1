package relay

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("core/relay")

// DefaultTTL 普通中继的存活时间
const DefaultTTL = 30 * time.Second

// ErrExpired 普通中继到期关闭
var ErrExpired = errors.New("relay expired")

// closeWriter 支持半关闭的流
type closeWriter interface {
	CloseWrite() error
}

// doner 可观察关闭的端点
type doner interface {
	Done() <-chan struct{}
}

// Relay 一条中继
type Relay struct {
	id   string
	mode types.RelayMode
	a, b io.ReadWriteCloser

	bytes atomic.Int64

	timer     *clock.Timer
	onClose   func(*Relay)
	closeOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

type options struct {
	id      string
	mode    types.RelayMode
	ttl     time.Duration
	clock   clock.Clock
	onClose func(*Relay)
}

// Option 中继选项
type Option func(*options)

// WithID 设置中继 ID（用于日志）
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithMode 设置生命周期模式
func WithMode(mode types.RelayMode) Option {
	return func(o *options) { o.mode = mode }
}

// WithTTL 设置普通中继的存活时间
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock 设置定时器使用的时钟
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithOnClose 中继关闭后回调，只调用一次
func WithOnClose(fn func(*Relay)) Option {
	return func(o *options) { o.onClose = fn }
}

// Splice 拼接 a 与 b 并立即开始转发
func Splice(a, b io.ReadWriteCloser, opts ...Option) *Relay {
	o := options{
		mode:  types.RelayOrdinary,
		ttl:   DefaultTTL,
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Relay{
		id:      o.id,
		mode:    o.mode,
		a:       a,
		b:       b,
		onClose: o.onClose,
		done:    make(chan struct{}),
	}
	if r.mode == types.RelayOrdinary && o.ttl > 0 {
		r.timer = o.clock.AfterFunc(o.ttl, func() {
			logger.Debug("中继到期", "id", r.id)
			r.closeWith(ErrExpired)
		})
	}

	go r.run()
	r.watch(a)
	r.watch(b)
	return r
}

// ID 中继 ID
func (r *Relay) ID() string { return r.id }

// Mode 生命周期模式
func (r *Relay) Mode() types.RelayMode { return r.mode }

// Bytes 已转发的字节数
func (r *Relay) Bytes() int64 { return r.bytes.Load() }

// Done 中继关闭时关闭
func (r *Relay) Done() <-chan struct{} { return r.done }

// Err 关闭原因，正常结束时为 nil
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close 关闭中继与两端
func (r *Relay) Close() error {
	r.closeWith(nil)
	return nil
}

func (r *Relay) run() {
	var g errgroup.Group
	g.Go(func() error { return r.pipe(r.b, r.a) })
	g.Go(func() error { return r.pipe(r.a, r.b) })
	err := g.Wait()
	r.closeWith(err)
}

// pipe 单向复制，源端读完后半关闭目标端
func (r *Relay) pipe(dst, src io.ReadWriteCloser) error {
	n, err := io.Copy(&countingWriter{w: dst, n: &r.bytes}, src)
	logger.Debug("中继单向结束", "id", r.id, "bytes", n)
	if err != nil {
		r.closeWith(err)
		return err
	}
	if cw, ok := dst.(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil {
			r.closeWith(err)
			return err
		}
	}
	return nil
}

// watch 端点本地关闭时拆除中继
func (r *Relay) watch(end io.ReadWriteCloser) {
	d, ok := end.(doner)
	if !ok {
		return
	}
	go func() {
		select {
		case <-d.Done():
			r.closeWith(nil)
		case <-r.done:
		}
	}()
}

func (r *Relay) closeWith(err error) {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()

		if r.timer != nil {
			r.timer.Stop()
		}
		_ = r.a.Close()
		_ = r.b.Close()
		close(r.done)

		logger.Debug("中继关闭", "id", r.id, "mode", r.mode, "bytes", r.bytes.Load(), "err", err)
		if r.onClose != nil {
			r.onClose(r)
		}
	})
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}
