package mapper

import "github.com/scottthesecond/syncframe/pkg/record"

// FieldCopyMapper renames fields between the two sides' shapes using a
// simple dest-name -> src-name table, in each direction. Fields absent
// from the table pass through unchanged. This is the simplest possible
// mapper, grounded on the teacher's pkg/replicator.Replicator, which
// registered a single declarative "shift" spec for its one transform.
type FieldCopyMapper struct {
	// DestToSrc maps a destination field name to the source field name
	// it's renamed from. ToSource uses this table directly; ToDest uses
	// its inverse.
	DestToSrc map[string]string

	srcToDest map[string]string
}

// NewFieldCopyMapper builds the inverse table once so ToDest doesn't
// recompute it per call.
func NewFieldCopyMapper(destToSrc map[string]string) *FieldCopyMapper {
	srcToDest := make(map[string]string, len(destToSrc))
	for dest, src := range destToSrc {
		srcToDest[src] = dest
	}
	return &FieldCopyMapper{DestToSrc: destToSrc, srcToDest: srcToDest}
}

func (m *FieldCopyMapper) ToDest(src record.Record) (record.Record, error) {
	return m.rename(src, m.srcToDest), nil
}

func (m *FieldCopyMapper) ToSource(dest record.Record) (record.Record, error) {
	return m.rename(dest, m.DestToSrc), nil
}

func (m *FieldCopyMapper) rename(in record.Record, table map[string]string) record.Record {
	out := record.Record{ID: in.ID, Fields: make(map[string]any, len(in.Fields))}
	for k, v := range in.Fields {
		if renamed, ok := table[k]; ok {
			out.Fields[renamed] = v
		} else {
			out.Fields[k] = v
		}
	}
	return out
}
