package journal

import (
	"time"
)

// Entry is one answered request.
type Entry struct {
	ID              string    `json:"id" db:"id"`
	TraceID         string    `json:"trace_id" db:"trace_id"`
	Backend         string    `json:"backend" db:"backend"`
	Endpoint        string    `json:"endpoint" db:"endpoint"`
	Scenario        string    `json:"scenario,omitempty" db:"scenario"`
	Outcome         string    `json:"outcome" db:"outcome"`
	RequestMethod   string    `json:"request_method" db:"request_method"`
	RequestPath     string    `json:"request_path" db:"request_path"`
	RequestHeaders  string    `json:"request_headers" db:"request_headers"`
	RequestBody     string    `json:"request_body" db:"request_body"`
	ResponseHeaders string    `json:"response_headers" db:"response_headers"`
	ResponseBody    string    `json:"response_body" db:"response_body"`
	StatusCode      int       `json:"status_code" db:"status_code"`
	DurationMs      int64     `json:"duration_ms" db:"duration_ms"`
	Timestamp       time.Time `json:"timestamp" db:"timestamp"`
}

// BatchConfig tunes the asynchronous writer.
type BatchConfig struct {
	BatchSize     int           `json:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	MaxQueueSize  int           `json:"max_queue_size"`
	MaxBatchQueue int           `json:"max_batch_queue"`
	MaxWorkers    int           `json:"max_workers"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 10000
	}
	if c.MaxBatchQueue <= 0 {
		c.MaxBatchQueue = 1000
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	return c
}

// Batch is a group of entries written in one transaction.
type Batch struct {
	ID        string
	Entries   []*Entry
	CreatedAt time.Time
}

// Stats is a snapshot of the writer counters.
type Stats struct {
	Running        bool
	InputQueueSize int
	BatchQueueSize int
	Processed      int64
	Batches        int64
	Errors         int64
	SyncWrites     int64
}
