package anomaly

// SuggestionKey identifies one root-cause hint
type SuggestionKey struct {
	Metric    string
	Direction Direction
}

// SuggestionTable maps (metric, direction) to a human-readable
// root-cause hint. The table is injected into the Detector so
// deployments can extend it without code changes.
type SuggestionTable map[SuggestionKey]string

// Suggest returns the hint for a metric/direction pair, or a generic
// message for metrics the table does not know about
func (t SuggestionTable) Suggest(metric string, direction Direction) string {
	if hint, ok := t[SuggestionKey{Metric: metric, Direction: direction}]; ok {
		return hint
	}
	return "No known cause for this metric. Investigate recent deployments, configuration changes and workload shifts."
}

// DefaultSuggestions returns the built-in hint table for the default
// metric catalog
func DefaultSuggestions() SuggestionTable {
	return SuggestionTable{
		{"connections_active", DirectionAbove}:       "Connection count spiked. Check for connection pool leaks, missing pool limits in new application releases, or a traffic surge.",
		{"connections_active", DirectionBelow}:       "Connection count dropped. An application tier may be down or failing to reach the database.",
		{"connections_waiting", DirectionAbove}:      "Many connections are waiting. Look for long-held locks or an undersized connection pool.",
		{"transactions_per_sec", DirectionAbove}:     "Transaction rate spiked. Check for batch jobs, retry storms, or unexpected traffic.",
		{"transactions_per_sec", DirectionBelow}:     "Transaction rate dropped. Upstream traffic may be blocked or the application may be erroring before commit.",
		{"buffer_cache_hit_ratio", DirectionBelow}:   "Cache hit ratio degraded. A new query pattern may be scanning large tables, or the working set outgrew memory.",
		{"avg_query_time_ms", DirectionAbove}:        "Queries are slower than usual. Check for missing indexes after schema changes, plan regressions, or resource saturation.",
		{"long_running_queries", DirectionAbove}:     "Long-running queries accumulating. Look for blocked sessions, runaway reports, or forgotten transactions.",
		{"deadlocks", DirectionAbove}:                "Deadlock rate increased. Recent code changes may access tables in inconsistent order.",
		{"blocked_sessions", DirectionAbove}:         "Sessions are blocking each other. Identify the lock holder; a long transaction is likely holding locks.",
		{"lock_wait_time_ms", DirectionAbove}:        "Lock wait time increased. Check for lock escalation or hot rows contended by concurrent writers.",
		{"temp_files_created", DirectionAbove}:       "Queries are spilling to disk. Sorts or hashes exceed work memory; check for new unindexed ORDER BY or GROUP BY queries.",
		{"database_size_mb", DirectionAbove}:         "Database growing faster than usual. Check for runaway logging tables, failed cleanup jobs, or table bloat.",
		{"checkpoint_write_time_ms", DirectionAbove}: "Checkpoints are slow. Write volume may have increased, or the I/O subsystem is saturated.",
		{"replication_lag_bytes", DirectionAbove}:    "Replication lag growing. The replica may be under-resourced or the primary write rate increased sharply.",
		{"cpu_usage_percent", DirectionAbove}:        "CPU usage spiked. Check for expensive queries, plan regressions, or a traffic surge.",
		{"disk_io_wait_ms", DirectionAbove}:          "I/O wait increased. Check for sequential scans on large tables, checkpoint storms, or failing disks.",
	}
}
