package journal

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"mimic/internal/logger"

	"github.com/SOLUCIONESSYCOM/scribe"
	"github.com/google/uuid"
)

var (
	ErrQueueFull = errors.New("queue is full")
)

// BatchManager writes journal entries asynchronously in batches. When it is
// stopped or its input queue is full, entries are written synchronously.
type BatchManager struct {
	db     *sql.DB
	config BatchConfig
	logger *scribe.Scribe

	mu      sync.RWMutex
	running bool
	input   chan *Entry
	batches chan *Batch
	wg      sync.WaitGroup

	processed  atomic.Int64
	batchCount atomic.Int64
	errors     atomic.Int64
	syncWrites atomic.Int64
}

func NewBatchManager(db *sql.DB, config BatchConfig, log *scribe.Scribe) *BatchManager {
	return &BatchManager{
		db:     db,
		config: config.withDefaults(),
		logger: logger.OrQuiet(log),
	}
}

func (bm *BatchManager) Start() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.running {
		return nil
	}

	bm.input = make(chan *Entry, bm.config.MaxQueueSize)
	bm.batches = make(chan *Batch, bm.config.MaxBatchQueue)
	bm.running = true

	for i := 0; i < bm.config.MaxWorkers; i++ {
		bm.wg.Add(1)
		go bm.batchWorker(i)
	}

	bm.wg.Add(1)
	go bm.batchAggregator()

	bm.logger.Info().
		Int("workers", bm.config.MaxWorkers).
		Int("batch_size", bm.config.BatchSize).
		Msg("Journal batch manager started")
	return nil
}

// Stop drains every queued entry into the database and waits for the
// workers to finish.
func (bm *BatchManager) Stop() {
	bm.mu.Lock()
	if !bm.running {
		bm.mu.Unlock()
		return
	}
	bm.running = false
	close(bm.input)
	bm.mu.Unlock()

	bm.wg.Wait()

	bm.logger.Info().
		Int("processed", int(bm.processed.Load())).
		Msg("Journal batch manager stopped")
}

func (bm *BatchManager) IsRunning() bool {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.running
}

// Record queues entry. It fills in the id and timestamp when missing.
func (bm *BatchManager) Record(entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	bm.mu.RLock()
	if !bm.running {
		bm.mu.RUnlock()
		return bm.insertSync(entry)
	}
	select {
	case bm.input <- entry:
		bm.mu.RUnlock()
		return nil
	default:
		bm.mu.RUnlock()
		return bm.insertSync(entry)
	}
}

// batchAggregator groups entries and hands full or stale batches to the
// workers. It owns the current batch.
func (bm *BatchManager) batchAggregator() {
	defer bm.wg.Done()
	defer close(bm.batches)

	ticker := time.NewTicker(bm.config.FlushInterval)
	defer ticker.Stop()

	current := newBatch(bm.config.BatchSize)
	flush := func() {
		if len(current.Entries) == 0 {
			return
		}
		bm.sendBatch(current)
		current = newBatch(bm.config.BatchSize)
	}

	for {
		select {
		case entry, ok := <-bm.input:
			if !ok {
				flush()
				return
			}
			current.Entries = append(current.Entries, entry)
			if len(current.Entries) >= bm.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (bm *BatchManager) sendBatch(batch *Batch) {
	select {
	case bm.batches <- batch:
	default:
		bm.logger.Warn().
			Str("batch_id", batch.ID).
			AnErr("error", ErrQueueFull).
			Msg("Batch queue full, writing batch directly")
		bm.processBatch(batch)
	}
}

func (bm *BatchManager) batchWorker(id int) {
	defer bm.wg.Done()

	for batch := range bm.batches {
		bm.processBatch(batch)
	}

	bm.logger.Debug().Int("worker", id).Msg("Journal worker stopped")
}

func (bm *BatchManager) processBatch(batch *Batch) {
	var lastErr error

	for attempt := 1; attempt <= bm.config.RetryAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), bm.config.Timeout)
		lastErr = insertBatch(ctx, bm.db, batch)
		cancel()

		if lastErr == nil {
			bm.batchCount.Add(1)
			bm.processed.Add(int64(len(batch.Entries)))
			return
		}

		if attempt < bm.config.RetryAttempts {
			bm.logger.Warn().
				Str("batch_id", batch.ID).
				Int("attempt", attempt).
				AnErr("error", lastErr).
				Msg("Journal batch failed, retrying")
			time.Sleep(time.Duration(attempt) * bm.config.RetryDelay)
		}
	}

	bm.errors.Add(1)
	bm.logger.Error().
		Str("batch_id", batch.ID).
		Int("entries", len(batch.Entries)).
		AnErr("error", lastErr).
		Msg("Journal batch dropped")
}

func (bm *BatchManager) insertSync(entry *Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), bm.config.Timeout)
	defer cancel()

	if err := InsertEntry(ctx, bm.db, entry); err != nil {
		bm.errors.Add(1)
		return err
	}
	bm.syncWrites.Add(1)
	bm.processed.Add(1)
	return nil
}

func (bm *BatchManager) Stats() Stats {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	return Stats{
		Running:        bm.running,
		InputQueueSize: len(bm.input),
		BatchQueueSize: len(bm.batches),
		Processed:      bm.processed.Load(),
		Batches:        bm.batchCount.Load(),
		Errors:         bm.errors.Load(),
		SyncWrites:     bm.syncWrites.Load(),
	}
}

func newBatch(size int) *Batch {
	return &Batch{
		ID:        uuid.New().String(),
		Entries:   make([]*Entry, 0, size),
		CreatedAt: time.Now(),
	}
}
