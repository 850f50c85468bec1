package config

import (
	"errors"
	"time"
)

// ProtocolConfig 控制协议参数
type ProtocolConfig struct {
	// RPCTimeout 单次 RPC 超时
	RPCTimeout Duration `json:"rpc_timeout"`

	// HandshakeTimeout 等待会话就绪的超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// UpgradeTimeout 传输升级（信令与新连接）的超时
	UpgradeTimeout Duration `json:"upgrade_timeout"`

	// CandidateTTL 候选有效期
	CandidateTTL Duration `json:"candidate_ttl"`

	// RelayTTL 普通中继存活时间
	RelayTTL Duration `json:"relay_ttl"`

	// MaxCandidates 每个会话最多保留的候选数
	MaxCandidates int `json:"max_candidates"`

	// RateLimit 每个会话的入站请求速率（条/秒），0 表示不限速
	RateLimit float64 `json:"rate_limit"`

	// RateBurst 入站请求突发量
	RateBurst int `json:"rate_burst"`
}

// DefaultProtocolConfig 返回默认控制协议参数
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		RPCTimeout:       Duration(30 * time.Second),
		HandshakeTimeout: Duration(30 * time.Second),
		UpgradeTimeout:   Duration(30 * time.Second),
		CandidateTTL:     Duration(15 * time.Second),
		RelayTTL:         Duration(30 * time.Second),
		MaxCandidates:    1024,
		RateLimit:        100,
		RateBurst:        200,
	}
}

// Validate 验证控制协议参数
func (c ProtocolConfig) Validate() error {
	if c.RPCTimeout <= 0 {
		return errors.New("rpc timeout must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("handshake timeout must be positive")
	}
	if c.UpgradeTimeout <= 0 {
		return errors.New("upgrade timeout must be positive")
	}
	if c.CandidateTTL <= 0 {
		return errors.New("candidate ttl must be positive")
	}
	if c.RelayTTL <= 0 {
		return errors.New("relay ttl must be positive")
	}
	if c.MaxCandidates <= 0 {
		return errors.New("max candidates must be positive")
	}
	if c.RateLimit < 0 {
		return errors.New("rate limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return errors.New("rate burst must be positive when rate limit is set")
	}
	return nil
}
