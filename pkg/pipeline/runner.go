package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/hoist/pkg/cache"
	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/lockfile"
	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/pkggraph"
	"github.com/matzehuels/hoist/pkg/plan"
	"github.com/matzehuels/hoist/pkg/registry"
	"github.com/matzehuels/hoist/pkg/resolver"
	"github.com/matzehuels/hoist/pkg/source"
)

// Runner executes the pipeline against real sources.
//
// The Runner is stateless except for the cache and logger; it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options. Each run gets its own source session,
// so version lists fetched while solving are never reused across runs.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// Fetcher overrides source access for all runs, mainly for tests.
	// Nil builds a fresh session per run.
	Fetcher source.Fetcher
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete load → resolve → lock → plan pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	r.applyLogger(&opts)

	result := &Result{}

	// Stage 1: Load
	ws, prev, err := r.Load(opts)
	if err != nil {
		return nil, err
	}
	result.Manifest = ws.Manifest
	result.ManifestPath = ws.Path
	result.LockPath = ws.LockPath

	// Stage 2: Resolve
	resolveStart := time.Now()
	g, prefs, err := r.ResolveManifest(ctx, ws, prev, opts)
	if err != nil {
		return nil, err
	}
	result.Graph = g
	result.Stats.ResolveTime = time.Since(resolveStart)
	result.Stats.Packages = g.Len()
	result.Stats.Edges = g.EdgeCount()
	result.Stats.Preferred = len(prefs)

	r.Logger.Info("resolved dependencies",
		"packages", g.Len(),
		"edges", g.EdgeCount(),
		"duration", result.Stats.ResolveTime)

	// Stage 3: Lock
	result.Lock = lockfile.FromGraph(g)
	result.LockDiff = lockfile.Diff(prev, result.Lock)
	if opts.Locked && len(result.LockDiff) > 0 {
		return nil, errors.New(errors.ErrCodeLockfileStale,
			"%s needs to be updated (%d changes) but locked mode is on",
			lockfile.Filename, len(result.LockDiff))
	}
	if !opts.NoLock {
		written, err := lockfile.Save(ws.LockPath, result.Lock)
		if err != nil {
			return nil, err
		}
		result.LockWritten = written
		if written {
			r.Logger.Info("updated lockfile", "path", ws.LockPath, "changes", len(result.LockDiff))
		} else {
			r.Logger.Debug("lockfile unchanged", "path", ws.LockPath)
		}
	}

	// Stage 4: Plan
	if !opts.SkipPlan {
		planStart := time.Now()
		p, err := plan.Build(g, plan.Options{Features: opts.Features, Logger: opts.Logger})
		if err != nil {
			return nil, err
		}
		result.Plan = p
		result.Stats.PlanTime = time.Since(planStart)
		result.Stats.Units = p.Len()

		r.Logger.Info("planned compilation",
			"units", p.Len(),
			"duration", result.Stats.PlanTime)
	}

	return result, nil
}

// Workspace bundles what the load stage found on disk.
type Workspace struct {
	Manifest *manifest.Manifest
	Path     string    // manifest file path
	LockPath string    // lockfile path next to the manifest
	Source   source.ID // path identity of the workspace directory
}

// Load locates and parses the workspace manifest, and reads the previous
// lockfile when one exists. With Options.Refresh an unreadable lockfile
// is ignored instead of failing the run.
func (r *Runner) Load(opts Options) (Workspace, *lockfile.File, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return Workspace{}, nil, err
	}

	path := opts.Manifest
	if path == "" {
		found, err := manifest.Find(opts.Dir)
		if err != nil {
			return Workspace{}, nil, err
		}
		path = found
	}
	m, err := manifest.Load(path)
	if err != nil {
		return Workspace{}, nil, err
	}

	dir := filepath.Dir(path)
	src, err := source.Path(dir)
	if err != nil {
		return Workspace{}, nil, err
	}
	ws := Workspace{
		Manifest: m,
		Path:     path,
		LockPath: filepath.Join(dir, lockfile.Filename),
		Source:   src,
	}

	prev, err := lockfile.Load(ws.LockPath)
	if err != nil {
		if !opts.Refresh {
			return Workspace{}, nil, err
		}
		r.Logger.Warn("ignoring unreadable lockfile", "path", ws.LockPath, "err", err)
		prev = nil
	}
	if opts.Locked && prev == nil {
		return Workspace{}, nil, errors.New(errors.ErrCodeLockfileStale,
			"locked mode is on but %s does not exist", lockfile.Filename)
	}
	return ws, prev, nil
}

// ResolveManifest solves the workspace requirements into a package
// graph, seeding the solver with versions reconciled from the previous
// lockfile. With Options.Refresh the previous lockfile is only used for
// change reporting, never as a preference.
func (r *Runner) ResolveManifest(ctx context.Context, ws Workspace, prev *lockfile.File, opts Options) (*pkggraph.Graph, []resolver.Preference, error) {
	regID, err := opts.RegistryID()
	if err != nil {
		return nil, nil, err
	}

	var prefs []resolver.Preference
	if !opts.Refresh {
		prefs = lockfile.Reconcile(ws.Manifest, prev)
	}
	if len(prefs) > 0 {
		r.Logger.Debug("reconciled lockfile", "preferred", len(prefs))
	}

	fetcher := r.Fetcher
	if fetcher == nil {
		fetcher = r.NewSession(opts)
	}

	res := resolver.New(fetcher, resolver.Options{
		Preferences:         prefs,
		AllowMultipleMajors: opts.AllowMultipleMajors,
		Registry:            regID,
		Logger:              opts.Logger,
	})
	g, err := res.Resolve(ctx, resolver.Root{Manifest: ws.Manifest, Source: ws.Source})
	if err != nil {
		return nil, nil, err
	}
	return g, prefs, nil
}

// NewSession builds a per-run source session backed by the runner's
// cache. Path and registry sources open on demand.
func (r *Runner) NewSession(opts Options) *source.Session {
	ttl := opts.IndexTTL
	if ttl == 0 {
		ttl = DefaultIndexTTL
	}
	return source.NewSession(source.SessionOptions{
		Logger: opts.Logger,
		Open: source.StandardOpener(registry.ClientOptions{
			Cache: r.Cache,
			Keyer: r.Keyer,
			TTL:   ttl,
		}),
	})
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
