package types

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ============================================================================
//                              ConnectInfo
// ============================================================================

// ConnectInfo 节点自描述的可达性信息
//
// 在握手（hello）和发现（getpeers）时向对端通告。
// nil 表示该节点不接受任何入站连接。
type ConnectInfo struct {
	// PXP 节点本身运行控制协议（可被中继后再握手）
	PXP bool `json:"pxp"`

	// Relay 节点愿意作为中继目标
	Relay bool `json:"relay"`

	// Upgrades 节点接受的升级传输名称，例如 "webrtc"、"tcp"
	Upgrades []string `json:"upgrades,omitempty"`
}

// SpeaksPXP 是否运行控制协议
func (c *ConnectInfo) SpeaksPXP() bool {
	return c != nil && c.PXP
}

// SupportsUpgrade 是否接受指定传输的升级
func (c *ConnectInfo) SupportsUpgrade(transport string) bool {
	return c != nil && slices.Contains(c.Upgrades, transport)
}

// Clone 返回深拷贝
func (c *ConnectInfo) Clone() *ConnectInfo {
	if c == nil {
		return nil
	}
	out := *c
	out.Upgrades = slices.Clone(c.Upgrades)
	return &out
}

// ============================================================================
//                              Candidate
// ============================================================================

// Candidate 发现阶段提供的候选节点引用
//
// ID 仅在签发它的会话内、且在 TTL 之内有效。
// 线上格式为二元组 [id, connectInfo]。
type Candidate struct {
	ID          string
	ConnectInfo *ConnectInfo
}

// MarshalJSON 编码为 [id, connectInfo]
func (c Candidate) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.ID, c.ConnectInfo})
}

// UnmarshalJSON 从 [id, connectInfo] 解码
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) < 1 {
		return fmt.Errorf("candidate: empty tuple")
	}
	if err := json.Unmarshal(pair[0], &c.ID); err != nil {
		return fmt.Errorf("candidate id: %w", err)
	}
	c.ConnectInfo = nil
	if len(pair) > 1 {
		if err := json.Unmarshal(pair[1], &c.ConnectInfo); err != nil {
			return fmt.Errorf("candidate connect info: %w", err)
		}
	}
	return nil
}

// ============================================================================
//                              RelayMode
// ============================================================================

// RelayMode 中继生命周期模式
type RelayMode string

const (
	// RelayOrdinary 普通中继，超过 TTL 自动关闭
	RelayOrdinary RelayMode = "ordinary"

	// RelaySignaling 升级信令中继，直到任一端断开才关闭
	RelaySignaling RelayMode = "signaling"
)

// Valid 检查模式是否有效
func (m RelayMode) Valid() bool {
	return m == RelayOrdinary || m == RelaySignaling
}
