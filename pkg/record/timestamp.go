package record

import (
	"strconv"
	"time"
)

// timestampFields is the field-name priority list the conflict resolver
// uses to find an updatedAt-class timestamp. First present field wins.
var timestampFields = []string{
	"updatedAt",
	"updated_at",
	"updatedOn",
	"updated_on",
	"lastModified",
	"last_modified",
	"modifiedAt",
	"modified_at",
}

// isoLayouts are tried in order by the permissive ISO-8601 parser.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ExtractTimestamp walks the fixed field-name priority list and returns
// the first extractable timestamp found in r.Fields. ok is false if none
// of the priority fields are present or none of the present ones parse.
func ExtractTimestamp(r Record) (ts time.Time, ok bool) {
	for _, name := range timestampFields {
		v, present := r.Fields[name]
		if !present {
			continue
		}
		if t, parsed := parseTimestampValue(v); parsed {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTimestampValue(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case int64:
		return time.UnixMilli(val), true
	case int:
		return time.UnixMilli(int64(val)), true
	case float64:
		return time.UnixMilli(int64(val)), true
	case string:
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return time.UnixMilli(n), true
		}
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
