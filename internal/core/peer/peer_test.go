package peer

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-pxp/internal/core/muxer"
	"github.com/dep2p/go-pxp/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type testHandler struct {
	NopHandler

	mu      sync.Mutex
	targets []Target

	relays   chan *muxer.Channel
	connects chan *muxer.Channel
	upgrade  func(transport string, payload json.RawMessage) (json.RawMessage, error)
}

func newTestHandler() *testHandler {
	return &testHandler{
		relays:   make(chan *muxer.Channel, 4),
		connects: make(chan *muxer.Channel, 4),
	}
}

func (h *testHandler) setTargets(targets ...Target) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.targets = targets
}

func (h *testHandler) PeersIn(string, *Peer) []Target {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Target(nil), h.targets...)
}

func (h *testHandler) HandleIncomingRelay(_ *Peer, ch *muxer.Channel) error {
	h.relays <- ch
	return nil
}

func (h *testHandler) HandleUpgrade(_ context.Context, _ *Peer, transport string, payload json.RawMessage) (json.RawMessage, error) {
	if h.upgrade == nil {
		return nil, types.ErrUnknownTransport
	}
	return h.upgrade(transport, payload)
}

func (h *testHandler) HandleConnect(_ *Peer, _ string, ch *muxer.Channel) {
	h.connects <- ch
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// pair 在 net.Pipe 上创建一对会话，a 为出站端
func pair(t *testing.T, optsA, optsB []Option) (*Peer, *Peer) {
	t.Helper()
	c1, c2 := net.Pipe()
	a, err := New(c1, append([]Option{WithNetworks("net")}, optsA...)...)
	require.NoError(t, err)
	b, err := New(c2, append([]Option{WithNetworks("net"), WithIncoming(true)}, optsB...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func readyPair(t *testing.T, optsA, optsB []Option) (*Peer, *Peer) {
	t.Helper()
	a, b := pair(t, optsA, optsB)
	ctx := testCtx(t)
	require.NoError(t, a.WaitReady(ctx))
	require.NoError(t, b.WaitReady(ctx))
	return a, b
}

func waitClosed(t *testing.T, p *Peer) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("peer did not close")
	}
}

func readN(t *testing.T, r io.Reader, n int) string {
	t.Helper()
	buf := make([]byte, n)
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(r, buf)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout reading")
	}
	return string(buf)
}

// rawRemote 手工驱动控制通道的对端
type rawRemote struct {
	ch *muxer.Channel
	r  *bufio.Reader
}

func newRaw(t *testing.T, opts ...Option) (*Peer, *rawRemote) {
	t.Helper()
	c1, c2 := net.Pipe()
	p, err := New(c1, append([]Option{WithNetworks("net")}, opts...)...)
	require.NoError(t, err)
	m, err := muxer.New(c2, true)
	require.NoError(t, err)
	ch, err := m.Channel("pxp")
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Close()
		m.Close()
	})
	return p, &rawRemote{ch: ch, r: bufio.NewReader(ch)}
}

func (r *rawRemote) send(t *testing.T, line string) {
	t.Helper()
	_, err := r.ch.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (r *rawRemote) recv(t *testing.T) []json.RawMessage {
	t.Helper()
	type result struct {
		line []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := r.r.ReadBytes('\n')
		done <- result{line, err}
	}()
	select {
	case res := <-done:
		require.NoError(t, res.err)
		var record []json.RawMessage
		require.NoError(t, json.Unmarshal(res.line, &record))
		return record
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for record")
		return nil
	}
}

// ============================================================================
//                              握手
// ============================================================================

// TestPeer_Handshake 测试双方完成握手并交换元数据
func TestPeer_Handshake(t *testing.T) {
	info := &types.ConnectInfo{PXP: true, Relay: true, Upgrades: []string{"direct"}}
	a, b := readyPair(t, nil, []Option{WithConnectInfo(info)})

	assert.Equal(t, StateReady, a.State())
	assert.True(t, b.Ready())
	assert.Equal(t, []string{"net"}, a.RemoteNetworks())
	assert.Equal(t, info, a.RemoteConnectInfo())
	assert.Nil(t, b.RemoteConnectInfo())
	assert.False(t, a.Incoming())
	assert.True(t, b.Incoming())
}

// TestPeer_HelloWireFormat 测试 hello 记录格式
func TestPeer_HelloWireFormat(t *testing.T) {
	_, raw := newRaw(t, WithConnectInfo(&types.ConnectInfo{PXP: true}))

	rec := raw.recv(t)
	require.Len(t, rec, 3)
	assert.JSONEq(t, `"hello"`, string(rec[0]))
	assert.JSONEq(t, `"0"`, string(rec[1]))
	assert.JSONEq(t, `[1,{"pxp":true,"relay":false},["net"]]`, string(rec[2]))
}

// TestPeer_HandshakeOrder 测试 hello 与 helloack 的到达顺序无关
func TestPeer_HandshakeOrder(t *testing.T) {
	t.Run("ack_first", func(t *testing.T) {
		p, raw := newRaw(t)
		raw.recv(t)

		raw.send(t, `["res","0",[null]]`)
		assert.Equal(t, StateConnecting, p.State())

		raw.send(t, `["hello","0",[1,null,["net"]]]`)
		ack := raw.recv(t)
		assert.JSONEq(t, `"res"`, string(ack[0]))
		require.NoError(t, p.WaitReady(testCtx(t)))
	})

	t.Run("hello_first", func(t *testing.T) {
		p, raw := newRaw(t)
		raw.recv(t)

		raw.send(t, `["hello","0",[1,null,["net"]]]`)
		raw.recv(t)
		assert.Equal(t, StateConnecting, p.State())

		raw.send(t, `["res","0",[null]]`)
		require.NoError(t, p.WaitReady(testCtx(t)))
	})
}

// TestPeer_DuplicateHello 测试重复 hello 致命
func TestPeer_DuplicateHello(t *testing.T) {
	p, raw := newRaw(t)
	raw.recv(t)

	raw.send(t, `["hello","0",[1,null,["net"]]]`)
	raw.recv(t)
	raw.send(t, `["res","0",[null]]`)
	require.NoError(t, p.WaitReady(testCtx(t)))

	raw.send(t, `["hello","1",[1,null,["net"]]]`)
	waitClosed(t, p)
	assert.ErrorIs(t, p.Err(), types.ErrDuplicateMessage)
	assert.ErrorIs(t, p.Err(), types.ErrProtocolViolation)
	assert.Equal(t, StateClosed, p.State())
}

// TestPeer_DuplicateHelloAck 测试重复 helloack 致命
func TestPeer_DuplicateHelloAck(t *testing.T) {
	p, raw := newRaw(t)
	raw.recv(t)

	raw.send(t, `["res","0",[null]]`)
	raw.send(t, `["res","0",[null]]`)
	waitClosed(t, p)
	assert.ErrorIs(t, p.Err(), types.ErrDuplicateMessage)
}

// TestPeer_VersionMismatch 测试版本不一致时不会就绪
func TestPeer_VersionMismatch(t *testing.T) {
	a, b := pair(t, nil, []Option{withVersion(2)})

	ctx := testCtx(t)
	errA := a.WaitReady(ctx)
	errB := b.WaitReady(ctx)
	assert.ErrorIs(t, errA, types.ErrVersionMismatch)
	assert.ErrorIs(t, errB, types.ErrVersionMismatch)
	assert.False(t, a.Ready())
	assert.False(t, b.Ready())
}

// TestPeer_NetworkMismatch 测试没有共同网络时握手失败
func TestPeer_NetworkMismatch(t *testing.T) {
	a, b := pair(t, nil, []Option{WithNetworks("other")})

	ctx := testCtx(t)
	assert.ErrorIs(t, a.WaitReady(ctx), types.ErrNetworkMismatch)
	assert.ErrorIs(t, b.WaitReady(ctx), types.ErrNetworkMismatch)
}

// TestPeer_CommandBeforeReady 测试握手前的命令致命
func TestPeer_CommandBeforeReady(t *testing.T) {
	p, raw := newRaw(t)
	raw.recv(t)

	raw.send(t, `["getpeers","0","net"]`)
	waitClosed(t, p)
	assert.ErrorIs(t, p.Err(), types.ErrNotReady)
}

// TestPeer_New_NoNetworks 测试必须配置网络
func TestPeer_New_NoNetworks(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	_, err := New(c1)
	assert.ErrorIs(t, err, ErrNoNetworks)
}

// TestPeer_CloseDisconnects 测试一端关闭后另一端正常断开
func TestPeer_CloseDisconnects(t *testing.T) {
	a, b := readyPair(t, nil, nil)

	require.NoError(t, a.Close())
	waitClosed(t, b)
	assert.NotErrorIs(t, b.Err(), types.ErrProtocolViolation)
	assert.NoError(t, a.Err())

	_, err := a.GetPeers(testCtx(t), "net")
	assert.ErrorIs(t, err, ErrClosed)
}

// ============================================================================
//                              命令
// ============================================================================

// TestPeer_GetPeersUnknownNetwork 测试未知网络返回 ResourceNotFound 且会话可用
func TestPeer_GetPeersUnknownNetwork(t *testing.T) {
	h := newTestHandler()
	a, b := readyPair(t, nil, []Option{WithHandler(h)})

	_, err := a.GetPeers(testCtx(t), "elsewhere")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, err, types.ErrUnknownNetwork)
	assert.True(t, a.Ready())
	assert.True(t, b.Ready())

	cands, err := a.GetPeers(testCtx(t), "net")
	require.NoError(t, err)
	assert.Empty(t, cands)
}

// TestPeer_GetPeersExcludesRequester 测试候选不包含请求方
func TestPeer_GetPeersExcludesRequester(t *testing.T) {
	h := newTestHandler()
	acceptor := &AcceptorTarget{Info: &types.ConnectInfo{Relay: true}}
	a, b := readyPair(t, nil, []Option{WithHandler(h)})
	h.setTargets(b, acceptor)

	cands, err := a.GetPeers(testCtx(t), "net")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.NotEmpty(t, cands[0].ID)
	assert.Equal(t, acceptor.Info, cands[0].ConnectInfo)
	assert.Equal(t, 1, b.NumCandidates())
}

// TestPeer_ConnectRoundTrip 测试数据通道双向传输
func TestPeer_ConnectRoundTrip(t *testing.T) {
	h := newTestHandler()
	a, _ := readyPair(t, nil, []Option{WithHandler(h)})

	chA, err := a.Connect(testCtx(t), "net")
	require.NoError(t, err)

	var chB *muxer.Channel
	select {
	case chB = <-h.connects:
	case <-time.After(5 * time.Second):
		t.Fatal("connect not delivered")
	}

	_, err = chA.Write([]byte("123"))
	require.NoError(t, err)
	assert.Equal(t, "123", readN(t, chB, 3))

	_, err = chB.Write([]byte("456"))
	require.NoError(t, err)
	assert.Equal(t, "456", readN(t, chA, 3))
}

// TestPeer_DuplicateConnect 测试同一网络重复 connect 报冲突且不致命
func TestPeer_DuplicateConnect(t *testing.T) {
	h := newTestHandler()
	a, b := readyPair(t, nil, []Option{WithHandler(h)})

	_, err := a.Connect(testCtx(t), "net")
	require.NoError(t, err)
	<-h.connects

	_, err = a.Connect(testCtx(t), "net")
	assert.ErrorIs(t, err, types.ErrDuplicateConnect)
	assert.ErrorIs(t, err, types.ErrConflict)

	// 对端同样拒绝
	_, err = b.Connect(testCtx(t), "net")
	assert.ErrorIs(t, err, types.ErrDuplicateConnect)

	assert.True(t, a.Ready())
	assert.True(t, b.Ready())
}

// TestPeer_ConnectAfterClose 测试数据通道关闭后可以重新建立
func TestPeer_ConnectAfterClose(t *testing.T) {
	h := newTestHandler()
	a, _ := readyPair(t, nil, []Option{WithHandler(h)})

	ch, err := a.Connect(testCtx(t), "net")
	require.NoError(t, err)
	remote := <-h.connects
	require.NoError(t, ch.Close())
	require.NoError(t, remote.Close())

	assert.Eventually(t, func() bool {
		ch, err = a.Connect(testCtx(t), "net")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

// TestPeer_Upgrade 测试升级信令透传
func TestPeer_Upgrade(t *testing.T) {
	h := newTestHandler()
	h.upgrade = func(transport string, payload json.RawMessage) (json.RawMessage, error) {
		if transport != "direct" {
			return nil, types.ErrUnknownTransport
		}
		return json.RawMessage(`{"answer":` + string(payload) + `}`), nil
	}
	a, _ := readyPair(t, nil, []Option{WithHandler(h)})

	out, err := a.Upgrade(testCtx(t), "direct", json.RawMessage(`"offer"`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"offer"}`, string(out))

	_, err = a.Upgrade(testCtx(t), "carrier-pigeon", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, types.ErrUnknownTransport)
	assert.True(t, a.Ready())
}
