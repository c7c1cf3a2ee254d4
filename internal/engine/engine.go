// Package engine implements the baseline and change-control workflows over
// the project hierarchy. All writes to a project serialize through a
// per-project lock; governed writes additionally append to the audit ledger
// and hand the committed entry to the notification dispatcher.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slipway/internal/audit"
	"slipway/internal/config"
	"slipway/internal/domain"
	"slipway/internal/engine/auth"
	"slipway/internal/fault"
	"slipway/internal/repo"
	"slipway/internal/telemetry"
)

// Notifier receives committed audit entries for fan-out. The engine never
// blocks on it.
type Notifier interface {
	Emit(entry domain.AuditEntry)
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Ledger  audit.Ledger
	Auth    auth.Checker
	Config  *config.Config
	Notify  Notifier
	Log     zerolog.Logger
	Metrics *telemetry.Metrics
	Now     func() time.Time

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	halted map[string]string
}

func New(db *sql.DB, cfg *config.Config, log zerolog.Logger) *Engine {
	r := repo.Repo{DB: db}
	return &Engine{
		DB:     db,
		Repo:   r,
		Ledger: audit.Ledger{},
		Auth:   auth.Checker{Repo: r, Config: cfg, Timeout: cfg.Workflow.CapabilityTimeout},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) timestamp() string { return e.now().UTC().Format(time.RFC3339) }

func (e *Engine) lockProject(projectID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks == nil {
		e.locks = make(map[string]*sync.Mutex)
	}
	l, ok := e.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[projectID] = l
	}
	return l
}

// haltReason reports whether writes to the project are halted after a
// consistency violation.
func (e *Engine) haltReason(projectID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reason, ok := e.halted[projectID]
	return reason, ok
}

func (e *Engine) haltProject(projectID, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted == nil {
		e.halted = make(map[string]string)
	}
	e.halted[projectID] = reason
	e.Log.Error().Str("project_id", projectID).Str("reason", reason).Msg("project writes halted")
}

// ResumeProject clears a halt after operator intervention. It verifies the
// ledger is dense before resuming.
func (e *Engine) ResumeProject(ctx context.Context, projectID string) error {
	if err := e.Ledger.Verify(ctx, e.DB, projectID); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.halted, projectID)
	return nil
}

// write runs fn inside a transaction while holding the project lock. Used by
// ungoverned hierarchy edits.
func (e *Engine) write(ctx context.Context, projectID string, fn func(tx *sql.Tx) error) error {
	lock := e.lockProject(projectID)
	lock.Lock()
	defer lock.Unlock()
	if reason, halted := e.haltReason(projectID); halted {
		return fault.ConsistencyError{ProjectID: projectID, Msg: reason}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// governed runs fn as an atomic governed transaction. fn may append an audit
// entry and return it for dispatch; sequence races roll the whole transaction
// back and retry up to the configured bound. A consistency violation halts
// the project.
func (e *Engine) governed(ctx context.Context, projectID string, fn func(tx *sql.Tx) (*domain.AuditEntry, error)) error {
	lock := e.lockProject(projectID)
	lock.Lock()
	defer lock.Unlock()
	if reason, halted := e.haltReason(projectID); halted {
		return fault.ConsistencyError{ProjectID: projectID, Msg: reason}
	}

	retries := e.Config.Workflow.LedgerRetries
	if retries <= 0 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		entry, err := e.attempt(ctx, fn)
		if err == nil {
			if entry != nil {
				if e.Metrics != nil {
					e.Metrics.GovernedTransactions.Inc()
				}
				if e.Notify != nil {
					e.Notify.Emit(*entry)
				}
			}
			return nil
		}
		var concurrency fault.ConcurrencyError
		if errors.As(err, &concurrency) {
			lastErr = err
			if e.Metrics != nil {
				e.Metrics.LedgerRetries.Inc()
			}
			e.Log.Warn().Str("project_id", projectID).Int("attempt", attempt+1).Msg("ledger sequence race, retrying")
			continue
		}
		var consistency fault.ConsistencyError
		if errors.As(err, &consistency) {
			e.haltProject(projectID, consistency.Msg)
		}
		return err
	}
	return lastErr
}

func (e *Engine) attempt(ctx context.Context, fn func(tx *sql.Tx) (*domain.AuditEntry, error)) (*domain.AuditEntry, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	entry, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fault.Validationf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// validateDatePair checks format and ordering of an optional start/end pair.
func validateDatePair(start, end *string, what string) error {
	var s, t time.Time
	var err error
	if start != nil && *start != "" {
		if s, err = parseDate(*start); err != nil {
			return err
		}
	}
	if end != nil && *end != "" {
		if t, err = parseDate(*end); err != nil {
			return err
		}
	}
	if !s.IsZero() && !t.IsZero() && t.Before(s) {
		return fault.Validationf("%s end date precedes start date", what)
	}
	return nil
}

// durationDays returns the whole-day span between two dates, nil when either
// is missing.
func durationDays(start, end *string) *int {
	if start == nil || end == nil || *start == "" || *end == "" {
		return nil
	}
	s, err1 := parseDate(*start)
	t, err2 := parseDate(*end)
	if err1 != nil || err2 != nil {
		return nil
	}
	d := int(t.Sub(s).Hours() / 24)
	return &d
}
