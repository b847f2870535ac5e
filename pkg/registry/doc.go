// Package registry implements the hoist package registry protocol.
//
// # Layout
//
// A registry is a directory tree of manifests plus an optional
// prebuilt index:
//
//	<root>/<name>/<version>/Hoist.toml
//	<root>/index/<name>.json
//
// Index files are JSON documents listing every published version of a
// package together with the checksum of its manifest bytes. When no
// index file exists the server derives one by scanning the manifest
// tree.
//
// # Protocol
//
// Two endpoints, both read-only:
//
//	GET /api/v1/index/{name}               version index (JSON)
//	GET /api/v1/manifests/{name}/{version} raw manifest bytes (TOML)
//
// [Server] serves a registry directory over this protocol for local
// development. [Client] is the matching HTTP client with response
// caching and retry; it backs the registry source used during
// resolution.
package registry
