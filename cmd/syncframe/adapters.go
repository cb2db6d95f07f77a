package main

import (
	"context"
	"fmt"

	"github.com/scottthesecond/syncframe/pkg/adapter"
	"github.com/scottthesecond/syncframe/pkg/config"
)

// buildAdapter resolves a side descriptor from the job file into a live
// adapter.Adapter instance. This is the host-side discovery spec §1
// explicitly puts out of scope for the core; cmd/syncframe keeps its own
// copy minimal — a real deployment would load this from a plugin
// registry instead of a switch statement.
func buildAdapter(ctx context.Context, side config.SideConfig) (adapter.Adapter, error) {
	switch side.AdapterName {
	case "memory":
		return adapter.NewInMemoryAdapter(), nil
	case "mongo":
		return adapter.NewMongoAdapter(ctx, side.DSN, side.Table, side.Table,
			valueOr(side.WatermarkColumn, "updatedAt"), valueOr(side.DeletedColumn, "_deleted"))
	case "sql":
		driver := valueOr(side.SQLDriver, "mysql")
		return adapter.NewSQLAdapter(driver, side.DSN, side.Table,
			valueOr(side.IDColumn, "id"), valueOr(side.WatermarkColumn, "updated_at"),
			valueOr(side.DeletedColumn, "deleted"))
	case "elasticsearch":
		return adapter.NewElasticsearchAdapter(side.DSN, side.Table, valueOr(side.WatermarkColumn, "updatedAt"))
	case "kafka":
		if len(side.Brokers) == 0 {
			return nil, fmt.Errorf("kafka side %q: brokers is required", side.Table)
		}
		return adapter.NewKafkaAdapter(side.Brokers, side.Table, side.Partition)
	default:
		return nil, fmt.Errorf("unknown adapter kind %q", side.AdapterName)
	}
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
