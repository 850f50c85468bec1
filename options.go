package pxp

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-pxp/pkg/types"
)

// Option 节点选项函数
type Option func(*options)

type options struct {
	clock         clock.Clock
	onConnect     func(types.EvtConnect)
	userFxOptions []fx.Option
}

// WithClock 设置定时器时钟（候选 TTL、中继 TTL、后台发现）
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithConnectHandler 设置应用数据通道处理器
//
// 对端打开的通道以及种子、后台发现建立的通道都会交给 h，每个通道一次，
// 通道归 h 所有。未设置时这些通道作为 types.EvtConnect 发出。
func WithConnectHandler(h func(types.EvtConnect)) Option {
	return func(o *options) {
		o.onConnect = h
	}
}

// WithFxOption 追加自定义 Fx 选项，例如额外的升级器
//
//	pxp.WithFxOption(fx.Provide(
//	    fx.Annotate(newMyUpgrader, fx.ResultTags(`group:"upgraders"`)),
//	))
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) {
		o.userFxOptions = append(o.userFxOptions, opts...)
	}
}
