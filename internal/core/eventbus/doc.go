// Package eventbus 实现进程内事件总线
//
// Swarm 的所有通知（peer-joined、peer-disconnected、peer-error、
// discovery-error、connect、upgrade-requested、incoming-relay）都经由
// 本包发布，订阅方与会话对象解耦。
//
// # 快速开始
//
//	bus := eventbus.NewBus()
//
//	sub, _ := bus.Subscribe(new(types.EvtPeerJoined))
//	defer sub.Close()
//
//	em, _ := bus.Emitter(new(types.EvtPeerJoined))
//	defer em.Close()
//	em.Emit(types.EvtPeerJoined{Peer: p})
//
//	evt := (<-sub.Out()).(types.EvtPeerJoined)
//
// # 并发安全
//
// 订阅/取消订阅由 RWMutex 保护；发射时不阻塞，订阅缓冲区满则丢弃事件
// 并周期性告警。
package eventbus
