// Package reconcile drives a replica back into convergence with its
// peers: the per-tick remote transaction queue, the stream and batch
// (rollback + re-simulate) application paths, ghost cleanup of expired
// predictions, and end-of-tick command entity teardown.
package reconcile

import (
	"github.com/evalgo-forge/ecsreplica/replop"
)

// RemoteQueue buffers incoming transactions keyed by the tick they were
// emitted for, the apply-for-current-tick discipline's backing structure.
type RemoteQueue struct {
	byTick map[uint64][]replop.Transaction
}

// NewRemoteQueue creates an empty queue.
func NewRemoteQueue() *RemoteQueue {
	return &RemoteQueue{byTick: make(map[uint64][]replop.Transaction)}
}

// Push buffers tx under its tick, preserving arrival order within a tick.
func (q *RemoteQueue) Push(tx replop.Transaction) {
	q.byTick[tx.Tick] = append(q.byTick[tx.Tick], tx)
}

// Take removes and returns every buffered transaction for tick, in arrival
// order.
func (q *RemoteQueue) Take(tick uint64) []replop.Transaction {
	txs := q.byTick[tick]
	delete(q.byTick, tick)
	return txs
}

// Has reports whether any transaction is buffered for tick.
func (q *RemoteQueue) Has(tick uint64) bool {
	return len(q.byTick[tick]) > 0
}

// MinTickBelow reports the smallest buffered tick strictly below limit —
// the late-arrival scan batch reconciliation starts from.
func (q *RemoteQueue) MinTickBelow(limit uint64) (uint64, bool) {
	var min uint64
	found := false
	for tick, txs := range q.byTick {
		if len(txs) == 0 || tick >= limit {
			continue
		}
		if !found || tick < min {
			min, found = tick, true
		}
	}
	return min, found
}

// Len reports how many transactions are buffered across all ticks.
func (q *RemoteQueue) Len() int {
	n := 0
	for _, txs := range q.byTick {
		n += len(txs)
	}
	return n
}
