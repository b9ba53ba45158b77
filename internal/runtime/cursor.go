package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cursor persists the last scan time of one detector as an RFC 3339
// timestamp in a small text file, so restarts resume where they left off.
type Cursor struct {
	path string
}

// NewCursor builds the cursor for a detector slug under dir, e.g.
// last_scan_sqli.txt.
func NewCursor(dir, slug string) *Cursor {
	return &Cursor{path: filepath.Join(dir, "last_scan_"+slug+".txt")}
}

// Load returns the stored scan time. A missing or unreadable file returns a
// zero time, which callers treat as "scan everything".
func (c *Cursor) Load() time.Time {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// Store writes the scan time. Write goes through a temp file and rename so a
// crash mid-write never leaves a torn cursor.
func (c *Cursor) Store(ts time.Time) error {
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(ts.UTC().Format(time.RFC3339Nano)), 0o644); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace cursor: %w", err)
	}
	return nil
}
