package muxer

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPair 创建一对通过 net.Pipe 相连的多路复用器
func newPair(t *testing.T, opts ...Option) (*Muxer, *Muxer, net.Conn, net.Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	out, err := New(c1, false, opts...)
	require.NoError(t, err)
	in, err := New(c2, true, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		out.Close()
		in.Close()
	})
	return out, in, c1, c2
}

func readN(t *testing.T, r io.Reader, n int) []byte {
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
		t.Fatal("timeout reading from channel")
	}
	return buf
}

// TestChannel_RoundTrip 测试两端同名通道互通
func TestChannel_RoundTrip(t *testing.T) {
	a, b, _, _ := newPair(t)

	chA, err := a.Channel("data")
	require.NoError(t, err)
	chB, err := b.Channel("data")
	require.NoError(t, err)

	_, err = chA.Write([]byte("123"))
	require.NoError(t, err)
	assert.Equal(t, []byte("123"), readN(t, chB, 3))

	_, err = chB.Write([]byte("456"))
	require.NoError(t, err)
	assert.Equal(t, []byte("456"), readN(t, chA, 3))
}

// TestChannel_Idempotent 测试同名通道幂等
func TestChannel_Idempotent(t *testing.T) {
	a, _, _, _ := newPair(t)

	ch1, err := a.Channel("pxp")
	require.NoError(t, err)
	ch2, err := a.Channel("pxp")
	require.NoError(t, err)
	assert.Same(t, ch1, ch2)
	assert.Equal(t, 1, a.NumChannels())

	_, err = a.Channel("")
	assert.ErrorIs(t, err, ErrInvalidChannelID)
}

// TestChannel_Isolation 测试不同通道的数据互不串扰
func TestChannel_Isolation(t *testing.T) {
	a, b, _, _ := newPair(t)

	x, _ := a.Channel("x")
	y, _ := a.Channel("y")
	_, err := x.Write([]byte("xx"))
	require.NoError(t, err)
	_, err = y.Write([]byte("yy"))
	require.NoError(t, err)

	bx, _ := b.Channel("x")
	by, _ := b.Channel("y")
	assert.Equal(t, []byte("yy"), readN(t, by, 2))
	assert.Equal(t, []byte("xx"), readN(t, bx, 2))
}

// TestChannel_NoStarvation 测试未被读取的通道不会阻塞兄弟通道
func TestChannel_NoStarvation(t *testing.T) {
	a, b, _, _ := newPair(t)

	stalled, _ := a.Channel("bulk")
	go func() {
		// 超过接收窗口，写入方会被该通道的流控暂停
		_, _ = stalled.Write(bytes.Repeat([]byte{1}, 1024*1024))
	}()

	ctl, _ := a.Channel("pxp")
	_, err := ctl.Write([]byte("ping"))
	require.NoError(t, err)

	peerCtl, _ := b.Channel("pxp")
	assert.Equal(t, []byte("ping"), readN(t, peerCtl, 4))
}

// TestChannel_HalfClose 测试半关闭后反向仍可写
func TestChannel_HalfClose(t *testing.T) {
	a, b, _, _ := newPair(t)

	chA, _ := a.Channel("h")
	_, err := chA.Write([]byte("bye"))
	require.NoError(t, err)
	require.NoError(t, chA.CloseWrite())

	chB, _ := b.Channel("h")
	data, err := io.ReadAll(chB)
	require.NoError(t, err)
	assert.Equal(t, []byte("bye"), data)

	_, err = chB.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), readN(t, chA, 2))

	_, err = chA.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrChannelClosed)
}

// TestChannel_CloseKeepsConnection 测试关闭通道不影响连接
func TestChannel_CloseKeepsConnection(t *testing.T) {
	a, b, _, _ := newPair(t)

	tmp, _ := a.Channel("tmp")
	require.NoError(t, tmp.Close())
	assert.Equal(t, 0, a.NumChannels())

	_, err := tmp.Write([]byte("x"))
	assert.Error(t, err)

	other, _ := a.Channel("other")
	_, err = other.Write([]byte("still"))
	require.NoError(t, err)
	peerOther, _ := b.Channel("other")
	assert.Equal(t, []byte("still"), readN(t, peerOther, 5))

	// 关闭后同名通道可重新创建
	again, err := a.Channel("tmp")
	require.NoError(t, err)
	assert.NotSame(t, tmp, again)
}

// TestMuxer_ConnectionErrorPropagates 测试连接终止传播到所有通道
func TestMuxer_ConnectionErrorPropagates(t *testing.T) {
	a, b, raw, _ := newPair(t)

	ch1, _ := b.Channel("one")
	ch2, _ := b.Channel("two")

	errs := make(chan error, 2)
	for _, ch := range []*Channel{ch1, ch2} {
		go func(ch *Channel) {
			_, err := ch.Read(make([]byte, 1))
			errs <- err
		}(ch)
	}

	require.NoError(t, raw.Close())

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.Error(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("channel read did not terminate")
		}
	}

	select {
	case <-b.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("muxer did not shut down")
	}
	assert.Error(t, b.Err())
	<-a.Done()

	_, err := b.Channel("three")
	assert.Error(t, err)
}

// TestMuxer_ChannelHandler 测试对端打开未知通道时回调
func TestMuxer_ChannelHandler(t *testing.T) {
	got := make(chan *Channel, 1)
	c1, c2 := net.Pipe()
	a, err := New(c1, false)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(c2, true, WithChannelHandler(func(ch *Channel) { got <- ch }))
	require.NoError(t, err)
	defer b.Close()

	ch, _ := a.Channel("relay:42")
	_, err = ch.Write([]byte("hi"))
	require.NoError(t, err)

	select {
	case inbound := <-got:
		assert.Equal(t, "relay:42", inbound.ID())
		same, _ := b.Channel("relay:42")
		assert.Same(t, inbound, same)
	case <-time.After(5 * time.Second):
		t.Fatal("channel handler not called")
	}
}

// TestConfig_Validate 测试配置验证
func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxStreamWindowSize = 1024
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := New(nil, false, WithConfig(nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
