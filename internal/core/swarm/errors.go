package swarm

import "errors"

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm is closed")

	// ErrEmptyNetworkID 网络 ID 为空
	ErrEmptyNetworkID = errors.New("network id must be a non-empty string")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("invalid config")

	// ErrNoCommonUpgrade 对端没有通告任何本地支持的升级传输
	ErrNoCommonUpgrade = errors.New("no common upgrade transport")
)
