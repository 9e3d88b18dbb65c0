// File: internal/chronicle/chronicle.go
// Description: The append-only journal of commit records, one JSON line per
// completed cycle (including NO-OP and FAILED outcomes). This is the only
// state that outlives a cycle.

package chronicle

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gardener-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Chronicle persists commit records as JSONL. Appends are serialized; the
// file is only ever opened in append mode, so existing entries are never
// rewritten.
type Chronicle struct {
	logger *zap.Logger
	path   string

	mu   sync.Mutex
	last *schemas.CommitRecord
}

// New opens (or creates) the journal at path and caches the most recent
// entry for the status surface.
func New(logger *zap.Logger, path string) (*Chronicle, error) {
	c := &Chronicle{
		logger: logger.Named("chronicle"),
		path:   path,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	records, err := c.load()
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		c.last = &records[len(records)-1]
	}
	return c, nil
}

// Append writes one record to the end of the journal.
func (c *Chronicle) Append(record schemas.CommitRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal commit record: %w", err)
	}

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append to journal: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}

	c.last = &record
	c.logger.Info("Commit record journaled.",
		zap.String("cycle_id", record.CycleID),
		zap.String("outcome", string(record.Outcome)),
	)
	return nil
}

// Last returns the most recent record, or nil if the journal is empty.
func (c *Chronicle) Last() (*schemas.CommitRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil, nil
	}
	out := *c.last
	return &out, nil
}

// List returns every journaled record in append order.
func (c *Chronicle) List() ([]schemas.CommitRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *Chronicle) load() ([]schemas.CommitRecord, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var records []schemas.CommitRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var record schemas.CommitRecord
		if err := json.Unmarshal(line, &record); err != nil {
			// A torn trailing line (crash mid-append) must not block the
			// journal; it is logged and skipped.
			c.logger.Warn("Skipping malformed journal line.", zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return records, nil
}
