package muxer

import "errors"

var (
	// ErrMuxerClosed 多路复用器已关闭
	ErrMuxerClosed = errors.New("muxer closed")

	// ErrConnectionLost 底层连接异常终止
	ErrConnectionLost = errors.New("connection lost")

	// ErrChannelClosed 通道已关闭
	ErrChannelClosed = errors.New("channel closed")

	// ErrInvalidChannelID 通道名称为空或过长
	ErrInvalidChannelID = errors.New("invalid channel id")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("invalid muxer config")
)
