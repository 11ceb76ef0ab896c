// history.go - Append-only history log and cache-derived views.

package coordinator

import (
	"context"
	"strings"
)

// appendHistory appends to the in-memory log and, if configured, the durable journal.
// Journal failures are logged; the in-memory log stays authoritative for this process.
func (c *Coordinator) appendHistory(ctx context.Context, e HistoryEntry) {
	c.mu.Lock()
	c.history = append(c.history, e)
	c.mu.Unlock()
	if c.journal != nil {
		if err := c.journal.Append(ctx, e); err != nil {
			c.log.Warn("history: journal append for %s failed: %v", e.RecordID, err)
		}
	}
}

// RestoreHistory loads previously journaled entries ahead of any entries already in memory.
func (c *Coordinator) RestoreHistory(ctx context.Context) (int, error) {
	if c.journal == nil {
		return 0, nil
	}
	entries, err := c.journal.Load(ctx)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.history = append(entries, c.history...)
	c.mu.Unlock()
	return len(entries), nil
}

// History returns the most recent n entries, oldest first. n <= 0 returns all entries.
func (c *Coordinator) History(n int) []HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	start := 0
	if n > 0 && n < len(c.history) {
		start = len(c.history) - n
	}
	out := make([]HistoryEntry, len(c.history)-start)
	copy(out, c.history[start:])
	return out
}

// Stats derives counts and the verified total from the cache.
// Unverified records contribute nothing to TotalAmount.
func (c *Coordinator) Stats() Stats {
	return ComputeStats(c.Records())
}

// ComputeStats derives Stats from a record snapshot.
func ComputeStats(records []Record) Stats {
	var s Stats
	s.Total = len(records)
	for _, r := range records {
		if r.Status == StatusActive {
			s.Active++
		}
		if v, ok := r.Amount(); ok {
			s.Verified++
			s.TotalAmount += v
		}
	}
	return s
}

// Filter returns cached records whose name or description contains query (case-insensitive)
// and whose category matches. An empty category or "all" matches every category.
func (c *Coordinator) Filter(query, category string) []Record {
	q := strings.ToLower(strings.TrimSpace(query))
	cat := strings.ToLower(strings.TrimSpace(category))
	var out []Record
	for _, r := range c.Records() {
		if cat != "" && cat != "all" && string(r.Category) != cat {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(r.Name), q) &&
			!strings.Contains(strings.ToLower(r.Description), q) {
			continue
		}
		out = append(out, r)
	}
	return out
}
