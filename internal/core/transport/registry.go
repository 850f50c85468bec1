package transport

import (
	"fmt"
	"slices"
	"sync"

	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
	"github.com/dep2p/go-pxp/pkg/lib/log"
)

var logger = log.Logger("core/transport")

// Registry 传输注册表
//
// 保持登记顺序；升级器的顺序即发起升级时的优先级。
type Registry struct {
	mu         sync.RWMutex
	transports []transportif.Transport
	upgraders  []transportif.Upgrader
}

var _ transportif.Registry = (*Registry)(nil)

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// AddTransport 实现 transportif.Registry
func (r *Registry) AddTransport(t transportif.Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.ContainsFunc(r.transports, func(x transportif.Transport) bool { return x.Name() == t.Name() }) {
		return fmt.Errorf("%w: %s", ErrTransportExists, t.Name())
	}
	r.transports = append(r.transports, t)
	logger.Debug("登记传输", "name", t.Name())
	return nil
}

// Transport 实现 transportif.Registry
func (r *Registry) Transport(name string) (transportif.Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transports {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Transports 实现 transportif.Registry
func (r *Registry) Transports() []transportif.Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.transports)
}

// Listeners 返回支持监听的传输
func (r *Registry) Listeners() []transportif.Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []transportif.Listener
	for _, t := range r.transports {
		if l, ok := t.(transportif.Listener); ok {
			out = append(out, l)
		}
	}
	return out
}

// AddUpgrader 实现 transportif.Registry
func (r *Registry) AddUpgrader(u transportif.Upgrader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.ContainsFunc(r.upgraders, func(x transportif.Upgrader) bool { return x.Transport() == u.Transport() }) {
		return fmt.Errorf("%w: %s", ErrUpgraderExists, u.Transport())
	}
	r.upgraders = append(r.upgraders, u)
	logger.Debug("登记升级器", "name", u.Transport())
	return nil
}

// Upgrader 实现 transportif.Registry
func (r *Registry) Upgrader(name string) (transportif.Upgrader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.upgraders {
		if u.Transport() == name {
			return u, true
		}
	}
	return nil, false
}

// Upgraders 实现 transportif.Registry
func (r *Registry) Upgraders() []transportif.Upgrader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.upgraders)
}
