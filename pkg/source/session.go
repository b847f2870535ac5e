package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/hoist/pkg/errors"
	"github.com/matzehuels/hoist/pkg/registry"
	"github.com/matzehuels/hoist/pkg/semver"
)

// prefetchConcurrency bounds parallel source queries during Prefetch.
const prefetchConcurrency = 8

// Query names one version-list lookup: a package in a source.
type Query struct {
	Source ID
	Name   string
}

// String renders "name @ source" for logs.
func (q Query) String() string {
	return fmt.Sprintf("%s @ %s", q.Name, q.Source)
}

// Session routes queries to sources and memoizes every answer for the
// duration of one resolution run.
//
// The resolver issues the same lookups many times while exploring the
// version space; the session guarantees each hits a source exactly
// once. Concurrent duplicate lookups collapse via singleflight, so a
// [Session.Prefetch] racing the solver never double-fetches. Discard
// the session when the run ends; a fresh run gets a fresh session.
type Session struct {
	id     string
	logger *log.Logger
	open   func(ID) (Source, error)

	group singleflight.Group

	mu        sync.RWMutex
	sources   map[ID]Source
	versions  map[Query][]semver.Version
	manifests map[PackageID]*ManifestSnapshot
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Logger receives fetch traces at debug level. Nil disables them.
	Logger *log.Logger

	// Open creates sources on demand for identities that appear in
	// dependencies without being registered up front. Nil restricts
	// the session to registered sources.
	Open func(ID) (Source, error)
}

// NewSession creates an empty session with a unique run ID.
func NewSession(opts SessionOptions) *Session {
	return &Session{
		id:        uuid.NewString(),
		logger:    opts.Logger,
		open:      opts.Open,
		sources:   make(map[ID]Source),
		versions:  make(map[Query][]semver.Version),
		manifests: make(map[PackageID]*ManifestSnapshot),
	}
}

// StandardOpener returns an Open callback that builds the production
// source for any identity: path sources for local directories,
// caching registry clients for registries, and pin-verifying wrappers
// for pinned identities.
func StandardOpener(opts registry.ClientOptions) func(ID) (Source, error) {
	return func(id ID) (Source, error) {
		var src Source
		var err error
		switch id.Unpinned().Kind() {
		case KindPath:
			src, err = NewPathSource(id.Dir())
		case KindRegistry:
			src, err = NewRegistrySource(id.Unpinned(), opts)
		default:
			err = errors.New(errors.ErrCodeInvalidSource, "cannot open source %s", id)
		}
		if err != nil {
			return nil, err
		}
		if id.IsPinned() {
			return NewPinnedSource(src, id.Pin())
		}
		return src, nil
	}
}

// ID returns the unique run ID of this session.
func (s *Session) ID() string { return s.id }

// Register adds a source, replacing any previous source with the same
// identity.
func (s *Session) Register(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID()] = src
}

// ListVersions returns the versions of a package in a source, sorted
// ascending. The answer is memoized; callers must not mutate it.
func (s *Session) ListVersions(ctx context.Context, src ID, name string) ([]semver.Version, error) {
	query := Query{Source: src, Name: name}

	s.mu.RLock()
	versions, ok := s.versions[query]
	s.mu.RUnlock()
	if ok {
		return versions, nil
	}

	result, err, _ := s.group.Do("versions\x00"+src.String()+"\x00"+name, func() (any, error) {
		s.mu.RLock()
		memo, ok := s.versions[query]
		s.mu.RUnlock()
		if ok {
			return memo, nil
		}

		source, err := s.source(src)
		if err != nil {
			return nil, err
		}
		fetched, err := source.ListVersions(ctx, name)
		if err != nil {
			return nil, err
		}
		if s.logger != nil {
			s.logger.Debug("listed versions", "run", s.id, "package", name, "source", src.Ident(), "count", len(fetched))
		}

		s.mu.Lock()
		s.versions[query] = fetched
		s.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]semver.Version), nil
}

// FetchManifest returns the manifest snapshot of an exact package.
// The answer is memoized; callers must not mutate it.
func (s *Session) FetchManifest(ctx context.Context, pkg PackageID) (*ManifestSnapshot, error) {
	s.mu.RLock()
	snap, ok := s.manifests[pkg]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	result, err, _ := s.group.Do("manifest\x00"+pkg.Source.String()+"\x00"+pkg.Name+"\x00"+pkg.Version.String(), func() (any, error) {
		s.mu.RLock()
		memo, ok := s.manifests[pkg]
		s.mu.RUnlock()
		if ok {
			return memo, nil
		}

		source, err := s.source(pkg.Source)
		if err != nil {
			return nil, err
		}
		fetched, err := source.FetchManifest(ctx, pkg)
		if err != nil {
			return nil, err
		}
		if s.logger != nil {
			s.logger.Debug("fetched manifest", "run", s.id, "package", pkg.String(), "checksum", fetched.Checksum)
		}

		s.mu.Lock()
		s.manifests[pkg] = fetched
		s.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ManifestSnapshot), nil
}

// Prefetch warms the version memo for a set of queries concurrently.
// Solving stays single-threaded; this is the one place parallel source
// traffic happens.
func (s *Session) Prefetch(ctx context.Context, queries []Query) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)
	for _, q := range queries {
		g.Go(func() error {
			_, err := s.ListVersions(ctx, q.Source, q.Name)
			return err
		})
	}
	return g.Wait()
}

func (s *Session) source(id ID) (Source, error) {
	s.mu.RLock()
	src, ok := s.sources[id]
	s.mu.RUnlock()
	if ok {
		return src, nil
	}

	if s.open == nil {
		return nil, errors.New(errors.ErrCodeInvalidSource, "no source registered for %s", id)
	}
	opened, err := s.open(id)
	if err != nil {
		return nil, err
	}
	if opened.ID() != id {
		return nil, errors.New(errors.ErrCodeInvalidSource,
			"opened source has identity %s, want %s", opened.ID(), id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sources[id]; ok {
		return existing, nil
	}
	s.sources[id] = opened
	return opened, nil
}

// Ensure Session implements Fetcher.
var _ Fetcher = (*Session)(nil)
