// Package schedule runs an ordered list of systems against a world once
// per tick, flushing archetype graph changes between each system so
// reactive queries observe batched moves at the barrier spec.md §5
// describes, not mid-system. Grounded on worker/pool.go's worker-draining
// loop, generalized from a goroutine-per-worker pool to an in-order,
// single-threaded system run per spec.md §5's no-parallelism-within-a-tick
// discipline.
package schedule

import "github.com/evalgo-forge/ecsreplica/ecsworld"

// Context is the bound parameter set handed to a system body: direct
// access to the world plus the tick it is running for. Systems call
// query.Bind(ctx.World, ...) themselves to instantiate their queries —
// spec.md's "create closures for spawn/add/despawn" are simply the
// World's own mutator methods, reached through ctx.World.
type Context struct {
	World *ecsworld.World
	Tick  uint64
}

// System is one scheduled unit of work with a descriptive name (used in
// logging) and a body run once per tick in declaration order.
type System struct {
	Name string
	Run  func(ctx *Context)
}

// Schedule is an ordered list of systems, run sequentially with no
// parallelism within a tick.
type Schedule struct {
	Systems []System
}

// NewSchedule builds a schedule from the given systems, run in the order
// given.
func NewSchedule(systems ...System) *Schedule {
	return &Schedule{Systems: systems}
}

// Add appends a system to the end of the schedule.
func (s *Schedule) Add(sys System) {
	s.Systems = append(s.Systems, sys)
}

// RunTick runs every system once, in declaration order, flushing the
// world's archetype graph changes after each system body returns so the
// next system (and any reactive listeners) observe this system's
// structural moves as a single batch.
func (s *Schedule) RunTick(w *ecsworld.World) {
	ctx := &Context{World: w, Tick: w.Tick()}
	for _, sys := range s.Systems {
		sys.Run(ctx)
		w.Graph.FlushGraphChanges()
	}
}
