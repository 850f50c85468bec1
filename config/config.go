// Package config 提供 PXP 节点的统一配置
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 加载与保存。时长字段使用 Duration，接受 "30s" 形式的字符串。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.NetworkID = "chat"
//	cfg.Transport.TCP.Port = 4001
//
//	// 从 JSON 加载
//	cfg, err := config.Load("node.json")
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Seed 启动时直接连接的节点
type Seed struct {
	// Transport 传输名称（tcp / websocket / quic）
	Transport string `json:"transport"`

	// Address 传输相关的地址，例如 "1.2.3.4:4001" 或 "ws://host:8080/pxp"
	Address string `json:"address"`
}

// Config PXP 节点的完整配置
type Config struct {
	// NetworkID 加入的网络，不能为空
	NetworkID string `json:"network_id"`

	// AllowIncoming 是否接受入站中继；为 false 时不通告可达性信息
	AllowIncoming bool `json:"allow_incoming"`

	// Protocol 控制协议参数
	Protocol ProtocolConfig `json:"protocol"`

	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// Upgrade 升级传输配置
	Upgrade UpgradeConfig `json:"upgrade"`

	// Discovery 后台发现配置
	Discovery DiscoveryConfig `json:"discovery"`

	// Seeds 启动时连接的节点
	Seeds []Seed `json:"seeds,omitempty"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
//
// NetworkID 没有默认值，调用方必须设置。
func NewConfig() *Config {
	return &Config{
		AllowIncoming: true,
		Protocol:      DefaultProtocolConfig(),
		Transport:     DefaultTransportConfig(),
		Upgrade:       DefaultUpgradeConfig(),
		Discovery:     DefaultDiscoveryConfig(),
		Log:           DefaultLogConfig(),
		Metrics:       DefaultMetricsConfig(),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.NetworkID == "" {
		return errors.New("network id must be a non-empty string")
	}
	if err := c.Protocol.Validate(); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.Upgrade.Validate(); err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	for i, s := range c.Seeds {
		if s.Transport == "" || s.Address == "" {
			return fmt.Errorf("seed %d: transport and address are required", i)
		}
	}
	return nil
}

// Parse 在默认配置之上解析 JSON，不做验证
func Parse(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// FromJSON 在默认配置之上解析 JSON 并验证
func FromJSON(data []byte) (*Config, error) {
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load 从文件加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return FromJSON(data)
}

// ToJSON 编码为缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// MustValidate 验证配置，失败时 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}
}
