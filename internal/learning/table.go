// Package learning keeps the hardware address to port bindings learned from
// the source address of observed traffic.
package learning

import (
	"github.com/carrodher/loadBalancer/internal/flow"
	"github.com/carrodher/loadBalancer/internal/logger"
)

// Table is a learning table. Implementations are not safe for concurrent
// use; the engine serializes access.
type Table interface {
	// Learn binds addr to port unless addr is already bound. It reports
	// whether a new binding was recorded.
	Learn(addr flow.HwAddr, port uint16) bool
	Lookup(addr flow.HwAddr) (uint16, bool)
	Len() int
}

// MapTable never evicts. A station that moves keeps its first port.
type MapTable struct {
	entries map[flow.HwAddr]uint16
}

func NewTable() *MapTable {
	return &MapTable{entries: make(map[flow.HwAddr]uint16)}
}

func (t *MapTable) Learn(addr flow.HwAddr, port uint16) bool {
	if _, ok := t.entries[addr]; ok {
		return false
	}
	t.entries[addr] = port
	logger.LearnLog.Debugf("learned %s -> port %d", addr, port)
	return true
}

func (t *MapTable) Lookup(addr flow.HwAddr) (uint16, bool) {
	port, ok := t.entries[addr]
	return port, ok
}

func (t *MapTable) Len() int {
	return len(t.entries)
}

// New returns the unbounded table for capacity 0 and an LRU-capped one
// otherwise.
func New(capacity int) (Table, error) {
	if capacity <= 0 {
		return NewTable(), nil
	}
	return NewLRUTable(capacity)
}
