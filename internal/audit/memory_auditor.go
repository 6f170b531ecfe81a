package audit

import (
	"sync"

	"github.com/pagopa/interop-platform-state/internal/core"
)

var (
	_ core.Auditor     = (*InMemoryAuditor)(nil)
	_ core.AuditReader = (*InMemoryAuditor)(nil)
)

// InMemoryAuditor is an auditor that stores audit logs in memory.
type InMemoryAuditor struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

func NewInMemoryAuditor() *InMemoryAuditor {
	return &InMemoryAuditor{
		entries: make([]core.AuditEntry, 0),
	}
}

func (i *InMemoryAuditor) Log(entry core.AuditEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = append(i.entries, entry)
	return nil
}

// GetRecent returns up to limit of the latest entries, oldest first.
func (i *InMemoryAuditor) GetRecent(limit int) ([]core.AuditEntry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	tail := limitTail(i.entries, limit)
	entries := make([]core.AuditEntry, len(tail))
	copy(entries, tail)
	return entries, nil
}

func (i *InMemoryAuditor) Find(filter func(entry core.AuditEntry) bool, limit int) ([]core.AuditEntry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var matches []core.AuditEntry
	for _, entry := range i.entries {
		if filter(entry) {
			matches = append(matches, entry)
		}
	}
	return limitTail(matches, limit), nil
}

func (i *InMemoryAuditor) Close() error {
	return nil // nothing to close :)
}
