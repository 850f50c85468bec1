package pxp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("core/pxp")

var (
	// ErrClosed Codec 已关闭
	ErrClosed = errors.New("pxp codec closed")

	// ErrAlreadyResponded 同一请求重复应答
	ErrAlreadyResponded = errors.New("pxp request already responded")
)

// Responder 应答闭包，写回携带相同 nonce 的 res 记录
type Responder func(err error, result any) error

// Handler 入站请求处理函数
//
// 在读循环中同步调用，同一会话内的请求严格串行。需要阻塞的处理应自行
// 启动 goroutine 并在之后调用 Responder。
type Handler func(msg *Message, res Responder)

// Codec 控制协议编解码器
type Codec struct {
	rw      io.ReadWriteCloser
	handler Handler
	onError func(error)
	limiter *rate.Limiter

	wmu sync.Mutex
	enc *json.Encoder

	mu        sync.Mutex
	nonce     uint64
	pending   map[string]*call
	abandoned map[string]struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	err       error
}

// Callback 应答回调，在读循环中同步调用
type Callback func(result json.RawMessage, err error)

// call 一个等待应答的请求
type call struct {
	ch chan response
	cb Callback
}

// Option Codec 选项
type Option func(*Codec)

// WithErrorHandler 设置读循环终止回调，只调用一次
func WithErrorHandler(fn func(error)) Option {
	return func(c *Codec) {
		c.onError = fn
	}
}

// WithRateLimit 限制入站请求速率，超出时读循环等待（背压而非断开）
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Codec) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// New 在 rw 上创建 Codec，调用 Start 后开始读取
func New(rw io.ReadWriteCloser, handler Handler, opts ...Option) *Codec {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Codec{
		rw:        rw,
		handler:   handler,
		enc:       json.NewEncoder(rw),
		pending:   make(map[string]*call),
		abandoned: make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start 启动读循环
func (c *Codec) Start() {
	go c.readLoop()
}

// Done Codec 关闭时关闭
func (c *Codec) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Err 返回终止原因
func (c *Codec) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close 关闭 Codec 与底层通道，所有等待中的请求以 ErrClosed 失败
func (c *Codec) Close() error {
	c.fail(ErrClosed)
	return nil
}

// ============================================================================
//                              发送
// ============================================================================

// Send 发送请求并等待应答
//
// ctx 取消时放弃该 nonce，之后到达的 res 被静默丢弃。
// 对端返回错误时返回 *types.RemoteError。
func (c *Codec) Send(ctx context.Context, cmd Command, args ...any) (json.RawMessage, error) {
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	nonce := c.nextNonceLocked()
	c.pending[nonce] = &call{ch: ch}
	c.mu.Unlock()

	if err := c.write(cmd, nonce, args); err != nil {
		c.abandon(nonce)
		return nil, err
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Result, nil
	case <-ctx.Done():
		c.abandon(nonce)
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, c.Err()
	}
}

// Call 发送请求并把结果解码到 result（可为 nil）
func (c *Codec) Call(ctx context.Context, cmd Command, result any, args ...any) error {
	raw, err := c.Send(ctx, cmd, args...)
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: %s result: %v", types.ErrInvalidMessage, cmd, err)
	}
	return nil
}

// Go 发送请求，应答到达时在读循环中调用 cb
//
// 与 Send 不同，cb 与后续入站记录严格有序。Codec 终止时以终止原因调用 cb。
func (c *Codec) Go(cmd Command, cb Callback, args ...any) error {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	nonce := c.nextNonceLocked()
	c.pending[nonce] = &call{cb: cb}
	c.mu.Unlock()

	return c.write(cmd, nonce, args)
}

// Notify 发送不需要应答的请求，对端若仍然应答则静默丢弃
func (c *Codec) Notify(cmd Command, args ...any) error {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	nonce := c.nextNonceLocked()
	c.abandoned[nonce] = struct{}{}
	c.mu.Unlock()
	return c.write(cmd, nonce, args)
}

func (c *Codec) nextNonceLocked() string {
	n := strconv.FormatUint(c.nonce, 36)
	c.nonce++
	return n
}

func (c *Codec) abandon(nonce string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[nonce]; ok {
		delete(c.pending, nonce)
		c.abandoned[nonce] = struct{}{}
	}
}

func (c *Codec) write(cmd Command, nonce string, args []any) error {
	record := []any{cmd, nonce}
	if v, ok := collapse(args); ok {
		record = append(record, v)
	}

	c.wmu.Lock()
	err := c.enc.Encode(record)
	c.wmu.Unlock()
	if err != nil {
		c.fail(fmt.Errorf("write %s: %w", cmd, err))
		return err
	}
	return nil
}

// ============================================================================
//                              接收
// ============================================================================

func (c *Codec) readLoop() {
	dec := json.NewDecoder(c.rw)
	for {
		var record []json.RawMessage
		if err := dec.Decode(&record); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				err = fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
			}
			c.fail(err)
			return
		}
		if err := c.onMessage(record); err != nil {
			c.fail(err)
			return
		}
	}
}

// onMessage 校验并分发一条记录，返回错误即为致命协议错误
func (c *Codec) onMessage(record []json.RawMessage) error {
	if len(record) < 2 {
		return fmt.Errorf("%w: %d fields", types.ErrInvalidMessage, len(record))
	}
	var cmd Command
	if err := json.Unmarshal(record[0], &cmd); err != nil {
		return fmt.Errorf("%w: command is not a string", types.ErrInvalidMessage)
	}
	if !cmd.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownCommand, cmd)
	}
	var nonce string
	if err := json.Unmarshal(record[1], &nonce); err != nil {
		return fmt.Errorf("%w: nonce is not a string", types.ErrInvalidMessage)
	}
	var args json.RawMessage
	if len(record) > 2 {
		args = record[2]
	}

	if cmd == CmdRes {
		return c.resolve(nonce, args)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(c.ctx); err != nil {
			return ErrClosed
		}
	}

	logger.Debug("收到请求", "cmd", cmd, "nonce", nonce)
	msg := &Message{Command: cmd, Nonce: nonce, Args: args}
	c.handler(msg, c.responder(cmd, nonce))
	return nil
}

// resolve 把 res 交给等待的请求
//
// 已经应答过的 nonce 再次收到 res 为重复消息，从未发出的 nonce 为意外应答。
func (c *Codec) resolve(nonce string, args json.RawMessage) error {
	c.mu.Lock()
	pc, ok := c.pending[nonce]
	if ok {
		delete(c.pending, nonce)
	} else if _, gone := c.abandoned[nonce]; gone {
		delete(c.abandoned, nonce)
		c.mu.Unlock()
		logger.Debug("丢弃已放弃请求的应答", "nonce", nonce)
		return nil
	}
	issued := c.issuedLocked(nonce)
	c.mu.Unlock()

	if !ok {
		if issued {
			return fmt.Errorf("%w: nonce=%q", types.ErrDuplicateMessage, nonce)
		}
		return fmt.Errorf("%w: nonce=%q", types.ErrUnexpectedResponse, nonce)
	}
	res, err := decodeResponse(args)
	if err != nil {
		return err
	}
	if pc.cb != nil {
		if res.Err != nil {
			pc.cb(nil, res.Err)
		} else {
			pc.cb(res.Result, nil)
		}
		return nil
	}
	pc.ch <- res
	return nil
}

// issuedLocked nonce 是否由本端发出过
func (c *Codec) issuedLocked(nonce string) bool {
	n, err := strconv.ParseUint(nonce, 36, 64)
	return err == nil && n < c.nonce && strconv.FormatUint(n, 36) == nonce
}

func (c *Codec) responder(cmd Command, nonce string) Responder {
	var once sync.Once
	return func(err error, result any) error {
		sent := false
		var werr error
		once.Do(func() {
			sent = true
			res, merr := buildResponse(err, result)
			if merr != nil {
				werr = merr
				return
			}
			werr = c.write(CmdRes, nonce, []any{res})
		})
		if !sent {
			return fmt.Errorf("%w: %s nonce=%q", ErrAlreadyResponded, cmd, nonce)
		}
		return werr
	}
}

func buildResponse(err error, result any) (response, error) {
	var res response
	if err != nil {
		res.Err = types.NewRemoteError(err)
		return res, nil
	}
	if result != nil {
		raw, merr := json.Marshal(result)
		if merr != nil {
			return res, fmt.Errorf("encode result: %w", merr)
		}
		res.Result = raw
	}
	return res, nil
}

// fail 终止 Codec，只生效一次
//
// 回调在 once 之外调用，回调中可以再次调用 Close。
func (c *Codec) fail(err error) {
	var (
		pending map[string]*call
		first   bool
	)
	c.closeOnce.Do(func() {
		first = true
		c.mu.Lock()
		c.err = err
		pending = c.pending
		c.pending = make(map[string]*call)
		c.mu.Unlock()

		c.cancel()
		_ = c.rw.Close()
	})
	if !first {
		return
	}

	for _, pc := range pending {
		if pc.cb != nil {
			pc.cb(nil, err)
		}
	}
	if c.onError != nil {
		c.onError(err)
	}
}
