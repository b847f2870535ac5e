// Package pkg provides the core libraries for Hoist dependency resolution.
//
// # Overview
//
// Hoist turns manifest requirements into exact package versions, records
// them in a lockfile, and orders compilation units for a build scheduler.
// The pkg directory is organized along that flow:
//
//	Hoist.toml
//	     ↓
//	[manifest] package (parse requirements, targets, features)
//	     ↓
//	[resolver] package (solve requirements against [source] providers)
//	     ↓
//	[pkggraph] + [lockfile] packages (resolution result + Hoist.lock)
//	     ↓
//	[plan] package (feature unification + ordered compilation units)
//
// # Quick Start
//
// Resolve a workspace and plan its build:
//
//	import "github.com/matzehuels/hoist/pkg/pipeline"
//
//	runner := pipeline.NewRunner(nil, nil, logger)
//	defer runner.Close()
//
//	res, err := runner.Execute(ctx, pipeline.Options{Dir: "."})
//	if err != nil {
//	    return err
//	}
//	for _, u := range res.Plan.Units {
//	    fmt.Println(u.ID())
//	}
//
// # Main Packages
//
// [semver] - Version values, interval sets, and requirement expressions
// (caret, tilde, comparison operators, wildcards).
//
// [manifest] - Hoist.toml parsing: package metadata, dependency tables,
// targets, and feature declarations.
//
// [source] - Package providers: path directories, HTTP registries, and
// pinned snapshots, unified behind a fetch session with request
// deduplication and prefetching.
//
// [resolver] - Conflict-driven version solving with unit propagation,
// backjumping, and human-readable conflict reports.
//
// [pkggraph] - The resolved dependency graph handed from the resolver to
// the lockfile and planner.
//
// [lockfile] - Hoist.lock reading, byte-stable writing, diffing, and
// reconciliation of locked versions into resolver preferences.
//
// [plan] - Feature unification, target expansion, and topological
// ordering of compilation units, with JSON and Graphviz exports.
//
// [pipeline] - Orchestration of load, resolve, lock, and plan used by
// the CLI so every entry point behaves the same.
//
// [registry] - Registry HTTP client plus a reference server and index
// scanner for serving packages from a directory.
//
// [cache] - Response caching backends: files, Redis, or none.
//
// [errors] - Coded errors shared across the module.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...          # All tests
//	go test ./pkg/resolver/... # Specific package
//
// [semver]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/semver
// [manifest]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/manifest
// [source]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/source
// [resolver]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/resolver
// [pkggraph]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/pkggraph
// [lockfile]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/lockfile
// [plan]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/plan
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/pipeline
// [registry]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/registry
// [cache]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/cache
// [errors]: https://pkg.go.dev/github.com/matzehuels/hoist/pkg/errors
package pkg
