package types

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSession struct {
	id     string
	closed bool
}

func (s *fakeSession) ID() string                      { return s.id }
func (s *fakeSession) Incoming() bool                  { return false }
func (s *fakeSession) Relayed() bool                   { return true }
func (s *fakeSession) RemoteConnectInfo() *ConnectInfo { return &ConnectInfo{PXP: true} }
func (s *fakeSession) Close() error                    { s.closed = true; return nil }

var _ Session = (*fakeSession)(nil)

// TestEvtConnect_Endpoint 测试裸端点数据通道没有会话
func TestEvtConnect_Endpoint(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	evt := EvtConnect{Network: "net", Stream: c1}
	assert.Nil(t, evt.Peer)
	assert.Equal(t, "net", evt.Network)
	assert.NotNil(t, evt.Stream)
}

// TestEvtPeerDisconnected_Session 测试事件通过 Session 视图关闭会话
func TestEvtPeerDisconnected_Session(t *testing.T) {
	s := &fakeSession{id: "a"}
	evt := EvtPeerDisconnected{Peer: s, Err: ErrNetworkMismatch}

	assert.Equal(t, "a", evt.Peer.ID())
	assert.True(t, evt.Peer.RemoteConnectInfo().SpeaksPXP())
	assert.True(t, errors.Is(evt.Err, ErrProtocolViolation))

	assert.NoError(t, evt.Peer.Close())
	assert.True(t, s.closed)
}
