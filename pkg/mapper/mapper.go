// Package mapper defines the per-direction record transformation
// contract used by the transform & dedup component (C4), plus two
// implementations: a plain field-copy mapper and a kazaam-backed mapper
// for declarative JSON-shift transforms.
package mapper

import "github.com/scottthesecond/syncframe/pkg/record"

// Mapper is supplied per direction as a {ToDest, ToSource} pair. The
// engine does not verify that the two are inverses of each other.
type Mapper interface {
	ToDest(src record.Record) (record.Record, error)
	ToSource(dest record.Record) (record.Record, error)
}
