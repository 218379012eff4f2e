package replication

import (
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/netproto"
)

// CommandBuffer is the per-tick resource buffering decoded command intents
// until a system consumes them. It is one of the rebind targets: a command
// aimed at a predicted entity must fire against the authoritative entity
// once the spawn rebinds.
type CommandBuffer struct {
	Commands []netproto.CommandSpec
}

// NewCommandBuffer creates an empty buffer, ready to install as a
// resource.
func NewCommandBuffer() *CommandBuffer {
	return &CommandBuffer{}
}

// Push appends one decoded command.
func (b *CommandBuffer) Push(spec netproto.CommandSpec) {
	b.Commands = append(b.Commands, spec)
}

// Drain returns and clears the buffered commands.
func (b *CommandBuffer) Drain() []netproto.CommandSpec {
	out := b.Commands
	b.Commands = nil
	return out
}

// RebindTarget rewrites every buffered command whose target is old to aim
// at new instead, reporting how many were rewritten.
func (b *CommandBuffer) RebindTarget(old, new ecsentity.Entity) int {
	n := 0
	for i := range b.Commands {
		if b.Commands[i].Target == old {
			b.Commands[i].Target = new
			n++
		}
	}
	return n
}
