package config

import (
	"errors"
	"time"
)

// DiscoveryConfig 后台发现配置
//
// 节点启动后按 Interval 调用 getNewPeer，直到会话数达到 TargetPeers。
type DiscoveryConfig struct {
	// TargetPeers 目标会话数，0 表示不做后台发现
	TargetPeers int `json:"target_peers"`

	// Interval 发现间隔
	Interval Duration `json:"interval"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		TargetPeers: 8,
		Interval:    Duration(10 * time.Second),
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	if c.TargetPeers < 0 {
		return errors.New("target peers must not be negative")
	}
	if c.TargetPeers > 0 && c.Interval <= 0 {
		return errors.New("discovery interval must be positive")
	}
	return nil
}
