package catalog

// MetricDefinition describes one monitored database metric
type MetricDefinition struct {
	Name        string `json:"name" yaml:"name"`
	Category    string `json:"category" yaml:"category"`
	Description string `json:"description" yaml:"description"`
}

// Catalog is the ordered list of metrics the engine monitors.
// It is injected at construction time so deployments (and tests)
// can substitute their own metric set.
type Catalog []MetricDefinition

// Metric categories
const (
	CategoryConnections = "connections"
	CategoryPerformance = "performance"
	CategoryLocking     = "locking"
	CategoryStorage     = "storage"
	CategoryReplication = "replication"
	CategorySystem      = "system"
)

// Default returns the built-in database metric catalog
func Default() Catalog {
	return Catalog{
		{Name: "connections_active", Category: CategoryConnections, Description: "Number of active backend connections"},
		{Name: "connections_waiting", Category: CategoryConnections, Description: "Connections waiting on a lock or resource"},
		{Name: "transactions_per_sec", Category: CategoryPerformance, Description: "Committed transactions per second"},
		{Name: "buffer_cache_hit_ratio", Category: CategoryPerformance, Description: "Buffer cache hit ratio (percent)"},
		{Name: "avg_query_time_ms", Category: CategoryPerformance, Description: "Average query execution time in milliseconds"},
		{Name: "long_running_queries", Category: CategoryPerformance, Description: "Queries running longer than 30 seconds"},
		{Name: "deadlocks", Category: CategoryLocking, Description: "Deadlocks detected since last sample"},
		{Name: "blocked_sessions", Category: CategoryLocking, Description: "Sessions blocked waiting on locks"},
		{Name: "lock_wait_time_ms", Category: CategoryLocking, Description: "Cumulative lock wait time in milliseconds"},
		{Name: "temp_files_created", Category: CategoryStorage, Description: "Temporary files spilled to disk"},
		{Name: "database_size_mb", Category: CategoryStorage, Description: "Total database size in megabytes"},
		{Name: "checkpoint_write_time_ms", Category: CategoryStorage, Description: "Time spent writing checkpoints"},
		{Name: "replication_lag_bytes", Category: CategoryReplication, Description: "Replication lag behind primary in bytes"},
		{Name: "cpu_usage_percent", Category: CategorySystem, Description: "Host CPU utilization (percent)"},
		{Name: "disk_io_wait_ms", Category: CategorySystem, Description: "Average disk I/O wait in milliseconds"},
	}
}

// ByName returns the definition for a metric name
func (c Catalog) ByName(name string) (MetricDefinition, bool) {
	for _, m := range c {
		if m.Name == name {
			return m, true
		}
	}
	return MetricDefinition{}, false
}

// Names returns all metric names in catalog order
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, m := range c {
		names[i] = m.Name
	}
	return names
}

// Contains reports whether the catalog has a metric with the given name
func (c Catalog) Contains(name string) bool {
	_, ok := c.ByName(name)
	return ok
}
