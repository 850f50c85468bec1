package config

import "fmt"

// 已知的升级传输
const (
	UpgradeDirect = "direct"
	UpgradeWebRTC = "webrtc"
)

// UpgradeConfig 升级传输配置
type UpgradeConfig struct {
	// Transports 按优先级排列的升级传输，空列表表示不升级
	Transports []string `json:"transports"`

	// Direct 直连 TCP 升级配置
	Direct DirectUpgradeConfig `json:"direct"`

	// WebRTC WebRTC 升级配置
	WebRTC WebRTCUpgradeConfig `json:"webrtc"`
}

// DirectUpgradeConfig 直连升级：Offer 携带一个临时 TCP 监听地址
type DirectUpgradeConfig struct {
	// Host 临时监听主机，同时作为通告地址
	Host string `json:"host"`
}

// WebRTCUpgradeConfig WebRTC 升级配置
type WebRTCUpgradeConfig struct {
	// ICEServers STUN/TURN 服务器 URL
	ICEServers []string `json:"ice_servers,omitempty"`
}

// DefaultUpgradeConfig 返回默认升级配置
func DefaultUpgradeConfig() UpgradeConfig {
	return UpgradeConfig{
		Transports: []string{UpgradeDirect},
		Direct: DirectUpgradeConfig{
			Host: "127.0.0.1",
		},
	}
}

// Validate 验证升级配置
func (c UpgradeConfig) Validate() error {
	seen := make(map[string]bool)
	for _, name := range c.Transports {
		switch name {
		case UpgradeDirect, UpgradeWebRTC:
		default:
			return fmt.Errorf("unknown upgrade transport %q", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate upgrade transport %q", name)
		}
		seen[name] = true
	}
	return nil
}
