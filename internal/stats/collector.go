// Package stats keeps per-operation call counts and latencies.
package stats

import (
	"sort"
	"sync"
	"time"
)

// OperationStats is a point-in-time view of one operation.
type OperationStats struct {
	Operation string
	Count     int64
	Errors    int64
	Average   time.Duration
	Max       time.Duration
}

type counters struct {
	count  int64
	errors int64
	total  time.Duration
	max    time.Duration
}

// Collector is safe for concurrent use. The zero value is not usable; call NewCollector.
type Collector struct {
	mu  sync.Mutex
	ops map[string]*counters
}

func NewCollector() *Collector {
	return &Collector{ops: make(map[string]*counters)}
}

// Record adds one call of op that took d. failed marks calls that returned an error.
func (c *Collector) Record(op string, d time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctr, ok := c.ops[op]
	if !ok {
		ctr = &counters{}
		c.ops[op] = ctr
	}
	ctr.count++
	ctr.total += d
	if d > ctr.max {
		ctr.max = d
	}
	if failed {
		ctr.errors++
	}
}

// Snapshot returns the current figures ordered by operation name.
func (c *Collector) Snapshot() []OperationStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]OperationStats, 0, len(c.ops))
	for op, ctr := range c.ops {
		out = append(out, OperationStats{
			Operation: op,
			Count:     ctr.count,
			Errors:    ctr.errors,
			Average:   ctr.total / time.Duration(ctr.count),
			Max:       ctr.max,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = make(map[string]*counters)
}
