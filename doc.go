// Package pxp 提供 PXP 节点门面
//
// PXP（peer exchange）让一个节点经由已连接的对端发现新对端：向对端索取候选、
// 经由对端中继到候选，再把中继连接升级为更直接的传输。
//
// # 快速开始
//
//	cfg := config.NewConfig()
//	cfg.NetworkID = "chat"
//	cfg.Transport.TCP.Port = 4001
//
//	node, err := pxp.New(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := node.Start(ctx); err != nil {
//	    return err
//	}
//	defer node.Stop(context.Background())
//
//	// 连接一个已知节点，再经由它发现更多节点
//	_, stream, err := node.Dial(ctx, "tcp", "1.2.3.4:4001")
//	defer stream.Close()
//	found, err := node.Swarm().GetNewPeer(ctx)
//
// # 组件装配
//
// New 通过 go.uber.org/fx 装配以下模块：
//
//	config → clock → eventbus → metrics → transport（传输与升级器）→ swarm
//
// 应用数据通道与会话事件通过 Swarm().Bus() 订阅（types.EvtConnect 等）。
package pxp
