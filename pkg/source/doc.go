// Package source loads family-tree collections from a backend.
//
// A [Source] answers four questions for a tree id: the tree header, its
// persons, its parent-child relationships and its marriages. Every call
// returns the full current collection; there is no pagination and no
// incremental diff. [Load] fetches all of them for one tree and returns a
// [Snapshot] that can be turned into a [family.Graph].
//
// Three implementations are provided:
//
//   - [APISource] talks to the REST backend (`GET /trees/{id}/persons` and
//     friends) and unwraps its `{"success":..., "data":...}` envelope.
//   - [FileSource] reads a JSON or YAML snapshot file and can watch it for
//     changes.
//   - [MongoSource] reads the same records from MongoDB collections.
//
// Failures are never retried; a failed load leaves the caller's previous
// state untouched.
package source
