package service

import (
	"context"
	"sync"
	"time"

	"mailseller-api/internal/model"
	"mailseller-api/internal/repository"

	"github.com/sirupsen/logrus"
)

// TransactionLog decouples request handling from transaction
// persistence: Add only appends to an in-memory buffer, and a
// background loop batch-writes to the durable store. A write failure
// re-queues the batch for the next flush, so records are only lost if
// the process dies with them buffered.
type TransactionLog struct {
	repo     repository.TransactionRepository
	interval time.Duration
	log      *logrus.Logger

	mu  sync.Mutex
	buf []model.Transaction

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewTransactionLog creates the log and starts its flush loop.
func NewTransactionLog(repo repository.TransactionRepository, interval time.Duration, log *logrus.Logger) *TransactionLog {
	l := &TransactionLog{
		repo:     repo,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Add buffers a record. It never blocks on the database.
func (l *TransactionLog) Add(tx model.Transaction) {
	l.mu.Lock()
	l.buf = append(l.buf, tx)
	l.mu.Unlock()
}

// Pending returns the number of buffered records.
func (l *TransactionLog) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

// Flush writes everything currently buffered. Called by the loop and
// by Stop; safe to call directly in tests.
func (l *TransactionLog) Flush(ctx context.Context) error {
	l.mu.Lock()
	batch := l.buf
	l.buf = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := l.repo.InsertTransactions(ctx, batch); err != nil {
		// Put the batch back ahead of anything added meanwhile
		l.mu.Lock()
		l.buf = append(batch, l.buf...)
		l.mu.Unlock()
		l.log.WithField("count", len(batch)).WithError(err).Error("[TransactionLog] Flush failed, batch re-queued")
		return err
	}

	l.log.WithField("count", len(batch)).Debug("[TransactionLog] Flushed batch")
	return nil
}

// Stop halts the loop and drains the buffer.
func (l *TransactionLog) Stop(ctx context.Context) error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopCh)
		<-l.doneCh
		err = l.Flush(ctx)
	})
	return err
}

func (l *TransactionLog) run() {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Errors are logged and the batch re-queued; nothing to do here
			_ = l.Flush(context.Background())
		case <-l.stopCh:
			return
		}
	}
}
