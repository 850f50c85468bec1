package metrics

import "go.uber.org/fx"

// Config 指标配置
type Config struct {
	// Enabled 是否启用指标收集
	Enabled bool
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	Config *Config `optional:"true"`
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewFromParams),
)

// NewFromParams 从参数创建指标集合，未启用时返回 nil
func NewFromParams(p Params) *Metrics {
	if p.Config != nil && !p.Config.Enabled {
		return nil
	}
	return New()
}
