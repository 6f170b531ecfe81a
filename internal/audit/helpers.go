package audit

import (
	"fmt"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/core"
)

const (
	TypeFile   = "file"
	TypeMemory = "memory"
)

// Actions recorded in the audit trail.
const (
	ActionTokenIssue    = "token.issue"
	ActionTokenDiagnose = "token.diagnose"
)

// New builds the auditor selected by cfg. Disabled auditing yields a NoopAuditor.
func New(cfg config.AuditConfig) (core.Auditor, error) {
	if !cfg.Enabled {
		return NewNoopAuditor(), nil
	}
	switch cfg.Type {
	case TypeFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("audit.path is required for the file auditor")
		}
		return NewFileAuditor(cfg.Path)
	case TypeMemory, "":
		return NewInMemoryAuditor(), nil
	default:
		return nil, fmt.Errorf("unknown audit type '%s'", cfg.Type)
	}
}

func limitTail(entries []core.AuditEntry, limit int) []core.AuditEntry {
	if limit >= 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}
