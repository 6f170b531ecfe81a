package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/pagopa/interop-platform-state/internal/core"
)

var _ core.Table = (*MemoryTable)(nil)

// MemoryTable is an in-process core.Table. Rows are stored as their JSON form
// so reads observe exactly what the Postgres table would return.
type MemoryTable struct {
	name     string
	pageSize int
	indexes  map[string]core.IndexDefinition

	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryTable(name string, pageSize int, indexes ...core.IndexDefinition) *MemoryTable {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	idx := make(map[string]core.IndexDefinition, len(indexes))
	for _, i := range indexes {
		idx[i.Name] = i
	}
	return &MemoryTable{
		name:     name,
		pageSize: pageSize,
		indexes:  idx,
		items:    make(map[string][]byte),
	}
}

func (t *MemoryTable) Name() string {
	return t.name
}

func (t *MemoryTable) Get(_ context.Context, pk string) (core.Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	raw, ok := t.items[pk]
	if !ok {
		return nil, core.ErrNotFound
	}
	return decodeRow(raw)
}

func (t *MemoryTable) Put(_ context.Context, item core.Item) error {
	pk := item.PK()
	if pk == "" {
		return fmt.Errorf("put into %s: item without primary key", t.name)
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding item '%s': %w", pk, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.items[pk]; exists {
		return core.ErrConditionFailed
	}
	t.items[pk] = raw
	return nil
}

func (t *MemoryTable) Update(_ context.Context, pk string, attrs core.Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, ok := t.items[pk]
	if !ok {
		return core.ErrConditionFailed
	}
	current, err := decodeRow(raw)
	if err != nil {
		return err
	}
	for k, v := range attrs {
		if k == core.AttrPK {
			continue
		}
		current[k] = v
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encoding item '%s': %w", pk, err)
	}
	t.items[pk] = merged
	return nil
}

func (t *MemoryTable) UpdateIf(_ context.Context, pk string, attrs core.Item, revision int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, ok := t.items[pk]
	if !ok {
		return core.ErrConditionFailed
	}
	current, err := decodeRow(raw)
	if err != nil {
		return err
	}
	stored, err := revisionOf(current)
	if err != nil {
		return err
	}
	if stored != revision {
		return core.ErrRevisionMismatch
	}
	for k, v := range attrs {
		if k == core.AttrPK {
			continue
		}
		current[k] = v
	}
	current[core.AttrRevision] = stored + 1
	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encoding item '%s': %w", pk, err)
	}
	t.items[pk] = merged
	return nil
}

func (t *MemoryTable) DeleteIf(_ context.Context, pk string, revision int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, ok := t.items[pk]
	if !ok {
		return core.ErrConditionFailed
	}
	current, err := decodeRow(raw)
	if err != nil {
		return err
	}
	stored, err := revisionOf(current)
	if err != nil {
		return err
	}
	if stored != revision {
		return core.ErrRevisionMismatch
	}
	delete(t.items, pk)
	return nil
}

func (t *MemoryTable) Delete(_ context.Context, pk string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.items, pk)
	return nil
}

func (t *MemoryTable) Replace(_ context.Context, item core.Item, oldPK string) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding item '%s': %w", item.PK(), err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[oldPK]; !ok {
		return core.ErrConditionFailed
	}
	delete(t.items, oldPK)
	t.items[item.PK()] = raw
	return nil
}

func (t *MemoryTable) Query(_ context.Context, q core.Query) (core.Page, error) {
	idx, ok := t.indexes[q.Index]
	if !ok {
		return core.Page{}, fmt.Errorf("table %s has no index '%s'", t.name, q.Index)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = t.pageSize
	}

	var after *position
	if q.Cursor != "" {
		p, err := decodeCursor(q.Cursor)
		if err != nil {
			return core.Page{}, err
		}
		after = &p
	}

	t.mu.RLock()
	matches := make([]core.Item, 0)
	for _, raw := range t.items {
		item, err := decodeRow(raw)
		if err != nil {
			t.mu.RUnlock()
			return core.Page{}, err
		}
		if v, _ := item[idx.PartitionAttr].(string); v == q.Key {
			matches = append(matches, item)
		}
	}
	t.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := positionOf(matches[i], idx), positionOf(matches[j], idx)
		if q.Descending {
			return b.less(a)
		}
		return a.less(b)
	})

	page := core.Page{Items: make([]core.Item, 0, limit)}
	for _, item := range matches {
		pos := positionOf(item, idx)
		if after != nil {
			if q.Descending && !pos.less(*after) {
				continue
			}
			if !q.Descending && !after.less(pos) {
				continue
			}
		}
		if len(page.Items) == limit {
			page.Next = encodeCursor(positionOf(page.Items[limit-1], idx))
			break
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// Len returns the number of stored rows.
func (t *MemoryTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

func decodeRow(raw []byte) (core.Item, error) {
	var item core.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptRecord, err)
	}
	return item, nil
}

// revisionOf reads the revision attribute of a decoded row; absent means zero.
func revisionOf(item core.Item) (int64, error) {
	switch v := item[core.AttrRevision].(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%w: '%s' has a %T revision", core.ErrCorruptRecord, item.PK(), v)
	}
}
