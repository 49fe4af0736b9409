package mesh

import "sync"

// Cache holds loaded meshes keyed by artifact path. It is an explicit
// service owned by the build driver and passed to whatever needs mesh
// reuse; there is no process-global mesh state.
type Cache struct {
	mu     sync.Mutex
	meshes map[string]*Mesh
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{meshes: make(map[string]*Mesh)}
}

// Load returns the mesh at path, reading it at most once. Callers that
// mutate the result must Copy it first.
func (c *Cache) Load(path string) (*Mesh, error) {
	c.mu.Lock()
	m, ok := c.meshes[path]
	c.mu.Unlock()
	if ok {
		return m, nil
	}

	m, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.meshes[path] = m
	c.mu.Unlock()
	return m, nil
}

// Evict drops the cached mesh for path, forcing the next Load to
// re-read the artifact. The driver evicts after a rebuild.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.meshes, path)
	c.mu.Unlock()
}

// Copy returns a deep copy of the mesh, safe to transform without
// affecting cached state.
func (m *Mesh) Copy() *Mesh {
	out := &Mesh{Triangles: make([]Triangle, len(m.Triangles))}
	copy(out.Triangles, m.Triangles)
	return out
}
