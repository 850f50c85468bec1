package webrtc

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUpgrader_RoundTrip 测试 SDP 交换后数据通道可用
func TestUpgrader_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("需要本地 ICE 候选")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	initiator := New(Config{})
	responder := New(Config{})
	assert.Equal(t, "webrtc", initiator.Transport())

	offer, err := initiator.NewOffer(ctx)
	require.NoError(t, err)
	defer offer.Close()

	answer, err := responder.Accept(ctx, offer.Payload())
	require.NoError(t, err)
	defer answer.Close()

	type result struct {
		conn io.ReadWriteCloser
		err  error
	}
	waited := make(chan result, 1)
	go func() {
		conn, err := answer.Wait(ctx)
		waited <- result{conn, err}
	}()

	local, err := offer.Complete(ctx, answer.Payload())
	require.NoError(t, err)
	defer local.Close()

	res := <-waited
	require.NoError(t, res.err)
	defer res.conn.Close()

	// 大于单条消息长度的写入被切分，读取端连续拿到
	payload := make([]byte, maxMessageSize*2+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	go func() { _, _ = local.Write(payload) }()

	got := make([]byte, len(payload))
	_, err = io.ReadFull(res.conn, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// TestUpgrader_AcceptInvalidOffer 测试无效 Offer
func TestUpgrader_AcceptInvalidOffer(t *testing.T) {
	u := New(Config{ICEServers: []string{"stun:stun.example.org:3478"}})
	_, err := u.Accept(context.Background(), json.RawMessage(`"nope"`))
	assert.Error(t, err)

	_, err = u.Accept(context.Background(), json.RawMessage(`{"type":"answer","sdp":""}`))
	assert.Error(t, err)
}
