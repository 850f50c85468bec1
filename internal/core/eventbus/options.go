package eventbus

// subscriptionSettings 订阅设置
type subscriptionSettings struct {
	Buffer int
}

// emitterSettings 发射器设置
type emitterSettings struct {
	Stateful bool
}

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*subscriptionSettings)

// EmitterOpt 发射器选项
type EmitterOpt func(*emitterSettings)

// BufSize 设置订阅缓冲区大小
func BufSize(size int) SubscriptionOpt {
	return func(s *subscriptionSettings) {
		s.Buffer = size
	}
}

// Stateful 设置发射器为有状态模式，新订阅者会先收到最后一个事件
func Stateful() EmitterOpt {
	return func(s *emitterSettings) {
		s.Stateful = true
	}
}
