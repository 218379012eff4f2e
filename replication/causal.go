package replication

import (
	"encoding/binary"
	"hash/fnv"
	"strconv"

	"github.com/evalgo-forge/ecsreplica/ecsworld"
)

// CausalKey derives the deterministic fingerprint pairing a prediction
// with its authoritative counterpart: a 32-bit FNV-1a fold of (tick,
// spawn_index_in_tick), rendered as a decimal string so the wire codec's
// uint32 causal-key field round-trips it exactly.
func CausalKey(tick uint64, spawnIndex int) string {
	h := fnv.New32a()
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[0:8], tick)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(spawnIndex))
	h.Write(buf[:])
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}

// NextCausalKey derives the causal key for the next spawn this tick: both
// the predicting client and the authoritative server reach the same key by
// running the same systems against the same tick, per the causal-key
// contract.
func NextCausalKey(w *ecsworld.World) string {
	return CausalKey(w.Tick(), w.TickSpawnCount())
}
