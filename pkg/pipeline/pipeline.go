// Package pipeline provides the core dependency pipeline for hoist.
//
// This package implements the complete load → resolve → lock → plan
// sequence that backs every CLI command. Centralizing it keeps lockfile
// handling identical across entry points.
//
// # Architecture
//
// The pipeline consists of four stages:
//
//  1. Load: read the workspace manifest and the previous lockfile
//  2. Resolve: solve requirements into exact versions, preferring locked choices
//  3. Lock: write the updated lockfile back, skipping no-op writes
//  4. Plan: expand the resolved graph into ordered compilation units
//
// Each stage can be run independently or as part of the complete pipeline.
//
// # Usage
//
// Create a Runner and execute the pipeline:
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	opts := pipeline.Options{Dir: "."}
//	result, err := runner.Execute(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, u := range result.Plan.Units {
//	    fmt.Println(u.ID())
//	}
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/lockfile"
	"github.com/matzehuels/hoist/pkg/manifest"
	"github.com/matzehuels/hoist/pkg/pkggraph"
	"github.com/matzehuels/hoist/pkg/plan"
	"github.com/matzehuels/hoist/pkg/source"
)

// DefaultIndexTTL bounds how long registry version indexes are reused
// from the cache. Manifests are immutable and cache forever; only the
// index can grow.
const DefaultIndexTTL = 15 * time.Minute

// Options contains all configuration for the dependency pipeline.
// This struct supports JSON serialization so a future API can accept it
// directly.
type Options struct {
	// Load options
	Dir      string `json:"dir,omitempty"`      // workspace directory, searched upward for Hoist.toml
	Manifest string `json:"manifest,omitempty"` // explicit manifest path, overrides Dir

	// Resolve options
	Registry            string `json:"registry,omitempty"` // fallback registry URL for bare requirements
	Refresh             bool   `json:"refresh,omitempty"`  // ignore the previous lockfile entirely
	Locked              bool   `json:"locked,omitempty"`   // fail instead of updating a stale lockfile
	NoLock              bool   `json:"no_lock,omitempty"`  // do not write Hoist.lock back
	AllowMultipleMajors bool   `json:"allow_multiple_majors,omitempty"`

	// Plan options
	Features []string `json:"features,omitempty"` // root features to activate beyond the defaults
	SkipPlan bool     `json:"skip_plan,omitempty"`

	// Runtime options (not serialized)
	Logger   *log.Logger   `json:"-"`
	IndexTTL time.Duration `json:"-"` // registry index cache TTL, 0 means DefaultIndexTTL

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool `json:"-"`
}

// ValidateAndSetDefaults checks option consistency and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Dir == "" {
		o.Dir = "."
	}
	if o.IndexTTL == 0 {
		o.IndexTTL = DefaultIndexTTL
	}
	if o.Locked && o.Refresh {
		return errors.New(errors.ErrCodeInvalidInput, "locked and refresh are mutually exclusive")
	}
	if o.Registry != "" {
		if err := errors.ValidateURL(o.Registry); err != nil {
			return err
		}
	}
	o.validated = true
	return nil
}

// RegistryID returns the fallback registry identity, or the zero ID when
// no override is set.
func (o *Options) RegistryID() (source.ID, error) {
	if o.Registry == "" {
		return source.ID{}, nil
	}
	return source.Registry(o.Registry)
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Manifest is the workspace root manifest.
	Manifest *manifest.Manifest

	// ManifestPath is the file the manifest was loaded from.
	ManifestPath string

	// Graph is the resolved package graph.
	Graph *pkggraph.Graph

	// Lock is the lockfile matching Graph.
	Lock *lockfile.File

	// LockPath is where Hoist.lock lives, next to the manifest.
	LockPath string

	// LockDiff lists entry-level changes against the previous lockfile.
	// Empty when the resolution reproduced it exactly.
	LockDiff []string

	// LockWritten reports whether Hoist.lock was rewritten on disk.
	LockWritten bool

	// Plan is the ordered compilation unit plan, nil when SkipPlan is set.
	Plan *plan.Plan

	// Stats contains timing and size information.
	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Packages  int // resolved packages, including the root
	Edges     int // dependency edges in the package graph
	Units     int // compilation units in the plan
	Preferred int // versions carried over from the previous lockfile

	ResolveTime time.Duration
	PlanTime    time.Duration
}
