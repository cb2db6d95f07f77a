package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/qntfy/kazaam/v4"

	"github.com/scottthesecond/syncframe/pkg/record"
)

// KazaamMapper maps records through a pair of declarative kazaam JSON-shift
// specs, one per direction. Both specs are compiled once, in
// NewKazaamMapper, and the two *kazaam.Kazaam transformers are held for
// the mapper's lifetime.
type KazaamMapper struct {
	toDestSpec   string
	toSourceSpec string

	toDest   *kazaam.Kazaam
	toSource *kazaam.Kazaam
}

// NewKazaamMapper compiles both direction specs eagerly so a bad spec
// fails at construction time rather than on the first record.
func NewKazaamMapper(toDestSpec, toSourceSpec string) (*KazaamMapper, error) {
	toDest, err := kazaam.NewKazaam(toDestSpec)
	if err != nil {
		return nil, fmt.Errorf("mapper: compile toDest spec: %w", err)
	}
	toSource, err := kazaam.NewKazaam(toSourceSpec)
	if err != nil {
		return nil, fmt.Errorf("mapper: compile toSource spec: %w", err)
	}
	return &KazaamMapper{
		toDestSpec:   toDestSpec,
		toSourceSpec: toSourceSpec,
		toDest:       toDest,
		toSource:     toSource,
	}, nil
}

func (m *KazaamMapper) ToDest(src record.Record) (record.Record, error) {
	return transform(m.toDest, src)
}

func (m *KazaamMapper) ToSource(dest record.Record) (record.Record, error) {
	return transform(m.toSource, dest)
}

func transform(k *kazaam.Kazaam, in record.Record) (record.Record, error) {
	inputJSON, err := json.Marshal(in.Fields)
	if err != nil {
		return record.Record{}, fmt.Errorf("mapper: marshal input: %w", err)
	}

	outputJSON, err := k.Transform(inputJSON)
	if err != nil {
		return record.Record{}, fmt.Errorf("mapper: kazaam transform: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(outputJSON, &fields); err != nil {
		return record.Record{}, fmt.Errorf("mapper: unmarshal output: %w", err)
	}

	id := in.ID
	if idVal, ok := fields["id"]; ok {
		if s, ok := idVal.(string); ok {
			id = s
		}
	}
	return record.Record{ID: id, Fields: fields}, nil
}
