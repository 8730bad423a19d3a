// Package loadgen seeds synthetic submissions, drives sync runs over HTTP
// and verifies that the directory ended up consistent.
package loadgen

import (
	"time"

	"github.com/okian/talentsync/internal/domain/types"
)

// Config holds settings for a load run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Token       string        // Bearer token sent with sync requests
	Submissions int           // Number of submissions to generate
	DupRatio    float64       // Share of submissions reusing an earlier email
	Workers     int           // Concurrent inserters
	Timeout     time.Duration // HTTP request timeout
	Seed        int64         // Generator seed; 0 picks one from the clock
}

// Defaults for Config fields left at zero.
const (
	DefaultBaseURL     = "http://localhost:9080"
	DefaultSubmissions = 100
	DefaultDupRatio    = 0.2
	DefaultWorkers     = 4
	DefaultTimeout     = 30 * time.Second
)

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Submissions <= 0 {
		c.Submissions = DefaultSubmissions
	}
	if c.DupRatio < 0 || c.DupRatio >= 1 {
		c.DupRatio = DefaultDupRatio
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// SyncResponse is the success body of the sync endpoint.
type SyncResponse struct {
	Success   bool                     `json:"success"`
	Processed int                      `json:"processed"`
	Results   []types.Result           `json:"results"`
	Counts    map[types.ItemStatus]int `json:"counts"`
	Timestamp time.Time                `json:"timestamp"`
}

// Summary converts the response back into a domain summary.
func (r SyncResponse) Summary() types.Summary {
	return types.Summary{Processed: r.Processed, Results: r.Results, Timestamp: r.Timestamp}
}

// Stats holds run statistics.
type Stats struct {
	Generated  int
	Inserted   int
	Failed     int
	UniqueKeys int
	Runs       int
	Synced     int
	Existing   int
	Errors     int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
