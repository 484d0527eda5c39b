// Package registry tracks every currently-mounted video surface. It is a
// leaf component: observer attachment and playback decisions belong to the
// coordinator.
package registry

import (
	"sort"
	"sync"

	"github.com/marketloop/videofeed/internal/logger"
	"github.com/marketloop/videofeed/internal/surface"
)

// Registry maps surface IDs to mounted surfaces. Mutations happen on the
// coordinator goroutine; the lock exists so snapshot reads (stats, list)
// stay safe from other goroutines.
type Registry struct {
	mu       sync.RWMutex
	surfaces map[string]*surface.Surface
	seq      uint64

	// currentID is the designated "current playing" surface when the
	// concurrency limit is one.
	currentID string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		surfaces: make(map[string]*surface.Surface),
	}
}

// Register adds a surface. A duplicate id wins over the previous entry
// (last registration wins); the replaced surface is returned so the caller
// can detach its observers and invalidate its disposer.
func (r *Registry) Register(id string, video surface.VideoHandle, container surface.ContainerHandle) (s *surface.Surface, replaced *surface.Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced = r.surfaces[id]
	if replaced != nil {
		// Worth a diagnostic, but not an error: remount races do this.
		logger.Log.Debug("Surface re-registered, previous entry replaced", logger.WithSurfaceID(id))
	}

	r.seq++
	s = &surface.Surface{
		ID:        id,
		Video:     video,
		Container: container,
		Seq:       r.seq,
		State:     surface.StateIdle,
	}
	r.surfaces[id] = s
	return s, replaced
}

// Unregister removes a surface and returns it, or nil if absent. If the
// surface was the current-playing designee the designation is cleared; the
// engine promotes a replacement on its next evaluation, not here.
func (r *Registry) Unregister(id string) *surface.Surface {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.surfaces[id]
	if !ok {
		return nil
	}
	delete(r.surfaces, id)
	if r.currentID == id {
		r.currentID = ""
	}
	return s
}

// Get returns the surface for id, or nil.
func (r *Registry) Get(id string) *surface.Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.surfaces[id]
}

// List returns a snapshot ordered by registration sequence (oldest first).
// Mutating the registry while iterating the snapshot is safe.
func (r *Registry) List() []*surface.Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*surface.Surface, 0, len(r.surfaces))
	for _, s := range r.surfaces {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Len returns the number of registered surfaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.surfaces)
}

// SetCurrent designates the current playing surface ("" clears it).
func (r *Registry) SetCurrent(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentID = id
}

// Current returns the designated current playing surface id, or "".
func (r *Registry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentID
}
