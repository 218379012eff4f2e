package ecsworld

import "github.com/evalgo-forge/ecsreplica/ecscomponent"

// SetResource installs value under id on the world's dedicated resource
// entity, per spec.md §5's singleton-resource model.
func (w *World) SetResource(id ecscomponent.ComponentID, value any) {
	_ = w.addComponent(w.resourceEntity, id, value, true, 0, false)
}

// GetResource returns the current value of resource id.
func (w *World) GetResource(id ecscomponent.ComponentID) (any, bool) {
	val, _, ok := w.GetComponent(w.resourceEntity, id)
	return val, ok
}
