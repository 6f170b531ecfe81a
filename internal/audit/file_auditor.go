package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/pagopa/interop-platform-state/internal/core"
)

var (
	_ core.Auditor     = (*FileAuditor)(nil)
	_ core.AuditReader = (*FileAuditor)(nil)
)

// FileAuditor is an auditor that appends audit logs to a file, one JSON object per line.
type FileAuditor struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	encoder *json.Encoder
}

func NewFileAuditor(filePath string) (*FileAuditor, error) {
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	return &FileAuditor{
		path:    filePath,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

func (f *FileAuditor) Log(entry core.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.encoder.Encode(entry); err != nil {
		return fmt.Errorf("writing audit log entry: %w", err)
	}
	return nil
}

func (f *FileAuditor) GetRecent(limit int) ([]core.AuditEntry, error) {
	return f.Find(func(core.AuditEntry) bool { return true }, limit)
}

// Find scans the whole file. Lines that do not decode are skipped.
func (f *FileAuditor) Find(filter func(entry core.AuditEntry) bool, limit int) ([]core.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	defer file.Close()

	var matches []core.AuditEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry core.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if filter(entry) {
			matches = append(matches, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log file: %w", err)
	}
	return limitTail(matches, limit), nil
}

func (f *FileAuditor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
