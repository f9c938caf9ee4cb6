// Package pgqueue implements jobs.Queue on a Postgres table. Workers lease
// rows with FOR UPDATE SKIP LOCKED so concurrent consumers never share a
// message. A row is deleted on Ack; a lease that expires before Ack makes
// the row visible again.
package pgqueue

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/artexin/internal/jobs"
)

const (
	defaultTable        = "job_queue"
	defaultPollInterval = time.Second
	defaultLease        = 10 * time.Minute
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the queue table, how often an empty queue is polled and
// how long a claimed row stays hidden from other workers.
type Config struct {
	Table        string
	PollInterval time.Duration
	Lease        time.Duration
}

// DB is the subset of *pgxpool.Pool the queue needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queue is a polling Postgres queue.
type Queue struct {
	db           DB
	pollInterval time.Duration
	lease        time.Duration
	insertSQL    string
	claimSQL     string
	ackSQL       string
	nackSQL      string
}

// New builds a Queue over db.
func New(db DB, cfg Config) (*Queue, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	lease := cfg.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	return &Queue{
		db:           db,
		pollInterval: poll,
		lease:        lease,
		insertSQL:    fmt.Sprintf(`INSERT INTO %s (type, job_id) VALUES ($1, $2)`, table),
		claimSQL: fmt.Sprintf(`UPDATE %[1]s
SET claimed_until = now() + make_interval(secs => $1)
WHERE id = (
	SELECT id FROM %[1]s
	WHERE claimed_until IS NULL OR claimed_until < now()
	ORDER BY id
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING id, type, job_id`, table),
		ackSQL:  fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table),
		nackSQL: fmt.Sprintf(`UPDATE %s SET claimed_until = NULL WHERE id = $1`, table),
	}, nil
}

// Enqueue inserts msg at the tail of the queue.
func (q *Queue) Enqueue(ctx context.Context, msg jobs.Message) error {
	if _, err := q.db.Exec(ctx, q.insertSQL, string(msg.Type), msg.ID); err != nil {
		return fmt.Errorf("insert queue row: %w", err)
	}
	return nil
}

// Dequeue leases the oldest unclaimed or expired message, polling until one
// is available or ctx is done. Ack deletes the row and Nack releases the
// lease.
func (q *Queue) Dequeue(ctx context.Context) (jobs.Delivery, error) {
	for {
		rowID, msg, err := q.claim(ctx)
		if err == nil {
			return jobs.NewDelivery(msg,
				func(ctx context.Context) error { return q.release(ctx, q.ackSQL, "ack", rowID) },
				func(ctx context.Context) error { return q.release(ctx, q.nackSQL, "nack", rowID) },
			), nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return jobs.Delivery{}, err
		}

		timer := time.NewTimer(q.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return jobs.Delivery{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Queue) claim(ctx context.Context) (int64, jobs.Message, error) {
	var (
		rowID       int64
		msgType, id string
	)
	if err := q.db.QueryRow(ctx, q.claimSQL, q.lease.Seconds()).Scan(&rowID, &msgType, &id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, jobs.Message{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, jobs.Message{}, ctxErr
		}
		return 0, jobs.Message{}, fmt.Errorf("claim queue row: %w", err)
	}
	return rowID, jobs.Message{Type: jobs.JobType(msgType), ID: id}, nil
}

func (q *Queue) release(ctx context.Context, sql, op string, rowID int64) error {
	if _, err := q.db.Exec(ctx, sql, rowID); err != nil {
		return fmt.Errorf("%s queue row %d: %w", op, rowID, err)
	}
	return nil
}
