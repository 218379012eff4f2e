package ecsentity

// DenseIndex maps entities to stable, world-local dense slots used to index
// component storage. Slots are reused via a free-list on reclamation so
// component arrays stay compact; two entities from different domains that
// happen to share a local_id still get distinct slots because the mapping
// key is the full packed Entity, not the local_id alone.
type DenseIndex struct {
	slotOf   map[Entity]int
	entityAt []Entity
	free     []int
}

// NewDenseIndex creates an empty dense index.
func NewDenseIndex() *DenseIndex {
	return &DenseIndex{slotOf: make(map[Entity]int)}
}

// Alloc assigns e a dense slot, reusing a reclaimed slot if one is free.
func (d *DenseIndex) Alloc(e Entity) int {
	if slot, ok := d.slotOf[e]; ok {
		return slot
	}
	var slot int
	if n := len(d.free); n > 0 {
		slot = d.free[n-1]
		d.free = d.free[:n-1]
		d.entityAt[slot] = e
	} else {
		slot = len(d.entityAt)
		d.entityAt = append(d.entityAt, e)
	}
	d.slotOf[e] = slot
	return slot
}

// Free reclaims e's slot for reuse and reports it, so the caller can clear
// the matching cell in every component store.
func (d *DenseIndex) Free(e Entity) (slot int, ok bool) {
	slot, ok = d.slotOf[e]
	if !ok {
		return 0, false
	}
	delete(d.slotOf, e)
	d.entityAt[slot] = 0
	d.free = append(d.free, slot)
	return slot, true
}

// Rebind transfers old's dense slot to new, preserving the slot number so
// every component store cell keyed by it stays valid — the storage half of
// predictive-spawn rebinding.
func (d *DenseIndex) Rebind(old, new Entity) (slot int, ok bool) {
	slot, ok = d.slotOf[old]
	if !ok {
		return 0, false
	}
	delete(d.slotOf, old)
	d.slotOf[new] = slot
	d.entityAt[slot] = new
	return slot, true
}

// Slot returns e's dense slot, if allocated.
func (d *DenseIndex) Slot(e Entity) (int, bool) {
	slot, ok := d.slotOf[e]
	return slot, ok
}

// EntityAt returns the entity occupying slot, if any (a freed or
// out-of-range slot reports the zero Entity, which is also the valid
// entity NewEntity(0, 0) — callers must check Slot membership first when
// in doubt).
func (d *DenseIndex) EntityAt(slot int) Entity {
	if slot < 0 || slot >= len(d.entityAt) {
		return 0
	}
	return d.entityAt[slot]
}

// Len returns the number of dense slots ever allocated, including freed
// ones still held in the backing array.
func (d *DenseIndex) Len() int { return len(d.entityAt) }
