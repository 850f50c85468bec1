package peer

import "errors"

var (
	// ErrClosed 会话已关闭
	ErrClosed = errors.New("peer closed")

	// ErrNoNetworks 没有配置网络
	ErrNoNetworks = errors.New("peer requires at least one network")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("invalid peer config")
)
