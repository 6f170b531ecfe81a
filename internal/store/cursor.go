package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/pagopa/interop-platform-state/internal/core"
)

// position identifies a row within an index: its sort value and primary key.
// Cursors are opaque to callers and only ever produced by a previous page.
type position struct {
	Sort string `json:"s"`
	PK   string `json:"pk"`
}

func encodeCursor(p position) string {
	raw, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(cursor string) (position, error) {
	var p position
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return p, fmt.Errorf("decoding cursor: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decoding cursor: %w", err)
	}
	return p, nil
}

// less orders positions ascending by sort value, then primary key.
func (p position) less(o position) bool {
	if p.Sort != o.Sort {
		return p.Sort < o.Sort
	}
	return p.PK < o.PK
}

func positionOf(item core.Item, idx core.IndexDefinition) position {
	p := position{PK: item.PK()}
	if idx.SortAttr != "" {
		p.Sort, _ = item[idx.SortAttr].(string)
	}
	return p
}
