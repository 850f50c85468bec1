package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCandidate_WireTuple 测试候选节点以二元组编码
func TestCandidate_WireTuple(t *testing.T) {
	c := Candidate{ID: "c1", ConnectInfo: &ConnectInfo{PXP: true, Upgrades: []string{"webrtc"}}}

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `["c1",{"pxp":true,"relay":false,"upgrades":["webrtc"]}]`, string(data))

	var out Candidate
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, c, out)
}

// TestCandidate_BareEndpoint 测试没有 connectInfo 的候选节点
func TestCandidate_BareEndpoint(t *testing.T) {
	var out Candidate
	require.NoError(t, json.Unmarshal([]byte(`["c2",null]`), &out))
	assert.Equal(t, "c2", out.ID)
	assert.False(t, out.ConnectInfo.SpeaksPXP())

	assert.Error(t, json.Unmarshal([]byte(`[]`), &out))
}

// TestConnectInfo_SupportsUpgrade 测试升级能力查询
func TestConnectInfo_SupportsUpgrade(t *testing.T) {
	var nilInfo *ConnectInfo
	assert.False(t, nilInfo.SupportsUpgrade("webrtc"))

	info := &ConnectInfo{Upgrades: []string{"tcp"}}
	assert.True(t, info.SupportsUpgrade("tcp"))
	assert.False(t, info.SupportsUpgrade("webrtc"))

	clone := info.Clone()
	clone.Upgrades[0] = "quic"
	assert.Equal(t, "tcp", info.Upgrades[0])
}
