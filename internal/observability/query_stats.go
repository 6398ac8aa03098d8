// Package observability tracks which predicates reach the virtual tables and
// how much each scan filtered.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/Sergimayol/sqlite-virtual-url/internal/pushdown"
	"github.com/Sergimayol/sqlite-virtual-url/pkg/types"
)

// QueryStats tracks pushed-down predicate frequency and per-table scan counters.
type QueryStats struct {
	mu            sync.RWMutex
	predicateFreq map[string]*ColumnStats
	scans         map[string]*ScanStats
	window        time.Duration
}

// ColumnStats holds statistics for one table column.
type ColumnStats struct {
	Table     string         `json:"table"`
	Column    string         `json:"column"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Operators map[string]int `json:"operators"` // operator → count (e.g., "=" → 5, ">" → 2)
}

// ScanStats accumulates the cursor scans of one table.
type ScanStats struct {
	Table       string    `json:"table"`
	Scans       int64     `json:"scans"`
	Pruned      int64     `json:"pruned"`
	RowsScanned int64     `json:"rows_scanned"`
	RowsEmitted int64     `json:"rows_emitted"`
	LastSeen    time.Time `json:"last_seen"`
}

// NewQueryStats creates a new query statistics tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		predicateFreq: make(map[string]*ColumnStats),
		scans:         make(map[string]*ScanStats),
		window:        window,
	}
}

// RecordPredicate records a predicate on a column of table.
// This method is O(1) and thread-safe.
func (q *QueryStats) RecordPredicate(table, column, operator string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recordPredicateLocked(table, column, operator, time.Now())
}

// RecordTerms records every decoded index term, resolving column numbers
// through schema. Out-of-range columns are ignored.
func (q *QueryStats) RecordTerms(table string, schema types.Schema, terms []pushdown.Term) {
	if len(terms) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for _, term := range terms {
		if term.Column < 0 || term.Column >= schema.Len() {
			continue
		}
		q.recordPredicateLocked(table, schema.Fields[term.Column].Name, term.Op.String(), now)
	}
}

func (q *QueryStats) recordPredicateLocked(table, column, operator string, now time.Time) {
	key := table + "." + column
	stats, exists := q.predicateFreq[key]
	if !exists {
		stats = &ColumnStats{
			Table:     table,
			Column:    column,
			Operators: make(map[string]int),
		}
		q.predicateFreq[key] = stats
	}

	stats.Frequency++
	stats.LastSeen = now
	stats.Operators[operator]++
}

// RecordScan records one finished cursor scan. pruned marks scans that the
// membership filters answered without touching any row.
func (q *QueryStats) RecordScan(table string, scanned, emitted int64, pruned bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats, exists := q.scans[table]
	if !exists {
		stats = &ScanStats{Table: table}
		q.scans[table] = stats
	}

	stats.Scans++
	if pruned {
		stats.Pruned++
	}
	stats.RowsScanned += scanned
	stats.RowsEmitted += emitted
	stats.LastSeen = time.Now()
}

// GetTopPredicates returns the top N columns by predicate frequency.
// Returns a copy of the stats sorted by frequency (descending).
func (q *QueryStats) GetTopPredicates(n int) []ColumnStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.predicateFreq) == 0 {
		return []ColumnStats{}
	}

	stats := make([]ColumnStats, 0, len(q.predicateFreq))
	for _, s := range q.predicateFreq {
		statsCopy := *s
		statsCopy.Operators = make(map[string]int, len(s.Operators))
		for op, count := range s.Operators {
			statsCopy.Operators[op] = count
		}
		stats = append(stats, statsCopy)
	}

	// Ties break on name so the output is stable
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		if stats[i].Table != stats[j].Table {
			return stats[i].Table < stats[j].Table
		}
		return stats[i].Column < stats[j].Column
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Scans returns a copy of the per-table scan counters ordered by table name.
func (q *QueryStats) Scans() []ScanStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]ScanStats, 0, len(q.scans))
	for _, s := range q.scans {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

// Prune removes entries where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := time.Now().Add(-q.window)

	for key, stats := range q.predicateFreq {
		if stats.LastSeen.Before(threshold) {
			delete(q.predicateFreq, key)
		}
	}

	for table, stats := range q.scans {
		if stats.LastSeen.Before(threshold) {
			delete(q.scans, table)
		}
	}
}
