package pxp

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-pxp/config"
	"github.com/dep2p/go-pxp/internal/core/eventbus"
	"github.com/dep2p/go-pxp/internal/core/metrics"
	"github.com/dep2p/go-pxp/internal/core/swarm"
	"github.com/dep2p/go-pxp/internal/core/transport"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置与时钟
//  2. EventBus → Metrics
//  3. Transport（传输 + 升级器值组）→ Swarm
//  4. 用户扩展
//  5. Node 组件注入
func buildFxApp(cfg *config.Config, o *options, node *Node) *fx.App {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置注入
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Supply(&metrics.Config{Enabled: cfg.Metrics.Enabled}),
		fx.Provide(func() clock.Clock { return o.clock }),
	}
	if o.onConnect != nil {
		modules = append(modules, fx.Provide(func() swarm.ConnectHandler { return o.onConnect }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 核心模块
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		eventbus.Module(),
		metrics.Module,
		transport.Module,
		swarm.Module,
	)

	// ════════════════════════════════════════════════════════════════════════
	// 3. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, o.userFxOptions...)

	// ════════════════════════════════════════════════════════════════════════
	// 4. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Populate(&node.swarm, &node.registry, &node.metrics))

	// ════════════════════════════════════════════════════════════════════════
	// 5. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...)
}
