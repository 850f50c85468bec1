package peer

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-pxp/pkg/types"
)

type candidate struct {
	target Target
	timer  *clock.Timer
}

// candidateRegistry 本会话通过 getpeers 签发的候选
//
// 每个候选在 TTL 后过期，取用一次即失效，目标会话关闭后不可解析。
type candidateRegistry struct {
	clock clock.Clock
	ttl   time.Duration
	cache *lru.Cache[string, *candidate]
}

func newCandidateRegistry(size int, ttl time.Duration, clk clock.Clock) (*candidateRegistry, error) {
	cache, err := lru.NewWithEvict[string, *candidate](size, func(_ string, c *candidate) {
		if c.timer != nil {
			c.timer.Stop()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("candidate registry: %w", err)
	}
	return &candidateRegistry{clock: clk, ttl: ttl, cache: cache}, nil
}

// add 登记目标并返回随机 ID
func (r *candidateRegistry) add(t Target) string {
	id := uuid.NewString()
	c := &candidate{target: t}
	c.timer = r.clock.AfterFunc(r.ttl, func() {
		r.cache.Remove(id)
	})
	r.cache.Add(id, c)
	return id
}

// take 取出候选，之后同一 ID 不再有效
func (r *candidateRegistry) take(id string) (Target, error) {
	c, ok := r.cache.Peek(id)
	if !ok || !r.cache.Remove(id) {
		return nil, fmt.Errorf("%w: id=%s", types.ErrUnknownCandidate, id)
	}
	if p, isPeer := c.target.(*Peer); isPeer && p.isClosed() {
		return nil, fmt.Errorf("%w: id=%s target closed", types.ErrUnknownCandidate, id)
	}
	return c.target, nil
}

func (r *candidateRegistry) len() int {
	return r.cache.Len()
}

// close 清空并停止所有定时器
func (r *candidateRegistry) close() {
	r.cache.Purge()
}
