package replication

import (
	"fmt"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/ecsworld"
	"github.com/evalgo-forge/ecsreplica/netproto"
	"github.com/evalgo-forge/ecsreplica/replop"
	"github.com/evalgo-forge/ecsreplica/wire"
)

// SnapshotMode selects how snapshot cells land: Authoritative replaces the
// stored version unconditionally; Versioned goes through last-writer-wins
// with the snapshot tick as the version, so in-flight local writes newer
// than the snapshot survive. Sender and receiver agree on the mode
// out-of-band.
type SnapshotMode int

const (
	SnapshotAuthoritative SnapshotMode = iota
	SnapshotVersioned
)

// ParseSnapshotMode maps the configuration strings to a SnapshotMode.
func ParseSnapshotMode(s string) (SnapshotMode, error) {
	switch s {
	case "authoritative":
		return SnapshotAuthoritative, nil
	case "versioned":
		return SnapshotVersioned, nil
	default:
		return 0, fmt.Errorf("replication: unknown snapshot mode %q", s)
	}
}

// SnapshotOptions tunes snapshot application.
type SnapshotOptions struct {
	Mode SnapshotMode
	// SenderDomain stamps versioned-mode writes with the sending peer's
	// domain so same-tick conflicts against local writes still resolve
	// deterministically.
	SenderDomain ecsentity.DomainID
}

// CaptureSnapshot builds a snapshot of every entity carrying the world's
// replication marker and one of the given components, for the world's
// current tick.
func CaptureSnapshot(w *ecsworld.World, componentIDs []ecscomponent.ComponentID) netproto.Snapshot {
	snap := netproto.Snapshot{Tick: w.Tick()}
	replicated := w.ReplicatedComponent()
	for _, id := range componentIDs {
		required := []ecscomponent.ComponentID{id}
		if replicated != 0 {
			required = append(required, replicated)
		}
		block := netproto.SnapshotBlock{ComponentID: id}
		for _, node := range w.Graph.NodesSupersetOf(ecscomponent.MakeVec(required), nil) {
			for _, e := range node.Entities() {
				entry := netproto.SnapshotEntry{Entity: e}
				if val, _, ok := w.GetComponent(e, id); ok {
					entry.Data, entry.HasData = val, true
				}
				block.Entries = append(block.Entries, entry)
			}
		}
		if len(block.Entries) > 0 {
			snap.Blocks = append(snap.Blocks, block)
		}
	}
	return snap
}

// ApplySnapshot writes every cell of an already-decoded snapshot into w.
// Entities the receiver has never seen are installed fresh; known entities
// get the component value per the selected mode.
func ApplySnapshot(w *ecsworld.World, snap netproto.Snapshot, opts SnapshotOptions) {
	w.RemoteApply(func() {
		for _, block := range snap.Blocks {
			applySnapshotBlock(w, snap.Tick, block, opts)
		}
	})
}

// ApplySnapshotStream decodes a snapshot body block-by-block from r
// (positioned after the message header) and applies each block as it is
// decoded, never materializing the whole snapshot — the lazy path for
// buffers known to contain a single snapshot message.
func ApplySnapshotStream(w *ecsworld.World, r *wire.Reader, tick uint64, opts SnapshotOptions) error {
	it, err := netproto.NewBlockIterator(r, w.Registry)
	if err != nil {
		return fmt.Errorf("replication: snapshot stream: %w", err)
	}
	var applyErr error
	w.RemoteApply(func() {
		for {
			block, ok, err := it.Next()
			if err != nil {
				applyErr = fmt.Errorf("replication: snapshot stream: %w", err)
				return
			}
			if !ok {
				return
			}
			applySnapshotBlock(w, tick, block, opts)
		}
	})
	return applyErr
}

func applySnapshotBlock(w *ecsworld.World, tick uint64, block netproto.SnapshotBlock, opts SnapshotOptions) {
	version := ecscomponent.MakeVersion(tick, opts.SenderDomain)
	for _, entry := range block.Entries {
		if !w.IsLive(entry.Entity) {
			payload := replop.ComponentPayload{ID: block.ComponentID, Data: entry.Data, HasData: entry.HasData}
			w.InstallRemoteEntity(entry.Entity, []replop.ComponentPayload{payload}, version)
			continue
		}
		if !entry.HasData {
			if !w.HasComponent(entry.Entity, block.ComponentID) {
				_ = w.AddComponent(entry.Entity, block.ComponentID, nil, false)
			}
			continue
		}
		switch opts.Mode {
		case SnapshotAuthoritative:
			_ = w.ForceSetComponentValue(entry.Entity, block.ComponentID, entry.Data, version)
		default:
			_, _ = w.SetComponentValue(entry.Entity, block.ComponentID, entry.Data, version)
		}
	}
}
