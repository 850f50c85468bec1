package swarm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-pxp/config"
	"github.com/dep2p/go-pxp/internal/core/eventbus"
	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
)

// TestModule 测试 Fx 模块装配
func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.NetworkID = "fx"
	cfg.Upgrade.Transports = []string{"pipe"}

	var s *Swarm
	app := fxtest.New(t,
		fx.Supply(cfg),
		eventbus.Module(),
		fx.Provide(
			fx.Annotate(
				func() transportif.Upgrader { return newPipeUpgrader("pipe") },
				fx.ResultTags(`group:"upgraders"`),
			),
			fx.Annotate(
				func() transportif.Upgrader { return newPipeUpgrader("unlisted") },
				fx.ResultTags(`group:"upgraders"`),
			),
		),
		Module,
		fx.Populate(&s),
	)
	app.RequireStart()

	assert.Equal(t, "fx", s.NetworkID())
	assert.Equal(t, []string{"pipe"}, s.ConnectInfo().Upgrades)
	assert.Equal(t, cfg.Protocol.HandshakeTimeout.Duration(), s.config.HandshakeTimeout)

	app.RequireStop()
	_, err := s.GetNewPeer(context.Background())
	assert.ErrorIs(t, err, ErrSwarmClosed)
}
