package main

import (
	"fmt"

	"github.com/scottthesecond/syncframe/pkg/config"
	"github.com/scottthesecond/syncframe/pkg/mapper"
)

func buildMapper(m config.MapperConfig) (mapper.Mapper, error) {
	switch m.Kind {
	case "fieldcopy":
		return mapper.NewFieldCopyMapper(m.FieldMap), nil
	case "kazaam":
		return mapper.NewKazaamMapper(m.Spec, m.Spec)
	default:
		return nil, fmt.Errorf("unknown mapper kind %q", m.Kind)
	}
}
