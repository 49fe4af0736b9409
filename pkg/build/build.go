// Package build drives a node tree to a fully built state. The driver
// itself is single-threaded; parallelism comes only from the external
// renderer running as an independent process, and the driver waits on
// at most one renderer at a time.
package build

import (
	"github.com/rs/zerolog"

	"github.com/chazu/burl/pkg/config"
	"github.com/chazu/burl/pkg/mesh"
	"github.com/chazu/burl/pkg/node"
)

// Driver orchestrates builds for one configuration. It owns the mesh
// cache used for spatial queries over the artifacts it produces.
type Driver struct {
	cfg      config.Config
	renderer node.Renderer
	logger   zerolog.Logger
	cache    *mesh.Cache
}

// New returns a driver for cfg, logging progress to logger.
func New(cfg config.Config, logger zerolog.Logger) *Driver {
	return &Driver{
		cfg: cfg,
		renderer: node.Renderer{
			Command: cfg.Renderer,
			Args:    cfg.RendererArgs,
		},
		logger: logger,
		cache:  mesh.NewCache(),
	}
}

// Cache exposes the driver's mesh cache to spatial query callers.
func (d *Driver) Cache() *mesh.Cache { return d.cache }

// Renderer returns the renderer invocation settings in use.
func (d *Driver) Renderer() node.Renderer { return d.renderer }

// BuildAll drives n and every descendant until the whole tree is up to
// date. Each walk stops at the first pending renderer job; the driver
// waits for it, finishes it, and restarts the walk from the top. The
// loop ends when a full walk raises no pending job.
func (d *Driver) BuildAll(n *node.Node) error {
	for {
		job, err := n.RenderTree(d.renderer)
		if err != nil {
			return err
		}
		if job == nil {
			d.logger.Info().Str("node", n.Name()).Msg("tree up to date")
			return nil
		}
		d.logger.Info().
			Str("file", job.StlFile).
			Int("pid", job.Pid()).
			Msg("waiting for renderer")
		if err := job.Wait(); err != nil {
			return err
		}
		d.cache.Evict(job.StlFile)
	}
}
