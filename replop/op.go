// Package replop holds the pure replication-operation and transaction data
// types shared by ecsworld (which produces them) and replication (which
// applies them), kept dependency-free of both to avoid an import cycle.
package replop

import (
	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
)

// Kind tags which ReplicationOp variant an Op carries.
type Kind uint8

const (
	KindSpawn Kind = iota
	KindDespawn
	KindSet
	KindAdd
	KindRemove
)

// ComponentPayload is one component's data (or tag presence) and optional
// relationship object, as attached to a Spawn op's component list.
type ComponentPayload struct {
	ID      ecscomponent.ComponentID
	Data    any
	HasData bool
	Rel     ecsentity.Entity
	HasRel  bool
}

// Op is one replication operation, per spec.md §4.6. Only the fields
// relevant to Kind are meaningful; the rest are left at zero value.
type Op struct {
	Kind       Kind
	Entity     ecsentity.Entity
	Components []ComponentPayload // Spawn

	ComponentID ecscomponent.ComponentID // Set, Add, Remove
	Data        any                      // Set, Add
	HasData     bool
	Version     ecscomponent.Version // Set; zero means "use tx.tick"
	HasVersion  bool
	Rel         ecsentity.Entity // Set, Add
	HasRel      bool

	CausalKey string // Spawn; empty means no predictive rebinding
}

// Transaction is one domain's batch of ops for a single tick, per spec.md
// §4.6 and §4.7.
type Transaction struct {
	DomainID ecsentity.DomainID
	Seq      uint64
	Tick     uint64
	Ops      []Op
}
