package learning

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/carrodher/loadBalancer/internal/flow"
	"github.com/carrodher/loadBalancer/internal/logger"
)

// LRUTable bounds the number of bindings. Bindings stay first-seen-sticky
// while they are resident; the least recently used one is dropped when the
// table is full.
type LRUTable struct {
	cache *lru.Cache[flow.HwAddr, uint16]
}

func NewLRUTable(capacity int) (*LRUTable, error) {
	cache, err := lru.NewWithEvict(capacity, func(addr flow.HwAddr, port uint16) {
		logger.LearnLog.Debugf("evicted %s (port %d)", addr, port)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "new lru table of %d", capacity)
	}
	return &LRUTable{cache: cache}, nil
}

func (t *LRUTable) Learn(addr flow.HwAddr, port uint16) bool {
	if found, _ := t.cache.ContainsOrAdd(addr, port); found {
		return false
	}
	logger.LearnLog.Debugf("learned %s -> port %d", addr, port)
	return true
}

func (t *LRUTable) Lookup(addr flow.HwAddr) (uint16, bool) {
	return t.cache.Get(addr)
}

func (t *LRUTable) Len() int {
	return t.cache.Len()
}
