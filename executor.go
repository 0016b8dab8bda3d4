package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ExecutorConfig bounds what the executor may hold open at once.
type ExecutorConfig struct {
	MaxPendingTransactions int
	StatementTimeout       time.Duration
	ConnectTimeout         time.Duration
	MaxResultRows          int
}

// Executor runs every statement inside the transactional envelope its
// classification calls for.
type Executor struct {
	registry  *Registry
	table     *TransactionTable
	admission *semaphore.Weighted
	cfg       ExecutorConfig
	metrics   *Metrics
	logger    *zap.Logger
	newID     func() string
}

func NewExecutor(registry *Registry, table *TransactionTable, cfg ExecutorConfig, metrics *Metrics, logger *zap.Logger) *Executor {
	return &Executor{
		registry:  registry,
		table:     table,
		admission: semaphore.NewWeighted(int64(cfg.MaxPendingTransactions)),
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.Named("executor"),
		newID:     uuid.NewString,
	}
}

func (e *Executor) acquire(ctx context.Context, db *Database) (*sql.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ConnectTimeout)
	defer cancel()

	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection to %s: %w", db.Alias, err)
	}
	return conn, nil
}

// cleanupContext detaches from the caller: once started, a rollback or
// commit must finish even if the request that triggered it is cancelled.
func (e *Executor) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.StatementTimeout)
}

// abort rolls back whatever is open on conn and releases it. A failed
// ROLLBACK drops the connection instead of pooling it.
func (e *Executor) abort(ctx context.Context, alias string, conn *sql.Conn) {
	cctx, cancel := e.cleanupContext(ctx)
	defer cancel()

	_, rbErr := conn.ExecContext(cctx, "ROLLBACK")
	if rbErr != nil {
		e.logger.Warn("rollback failed, discarding connection", zap.String("alias", alias), zap.Error(rbErr))
	}
	if err := releaseConn(conn, rbErr != nil); err != nil {
		e.logger.Warn("failed to release connection", zap.String("alias", alias), zap.Error(err))
	}
}

// Query runs a read-only statement in a READ ONLY transaction that is always
// rolled back before the connection goes back to its pool.
func (e *Executor) Query(ctx context.Context, alias, sqlText string) (result *QueryResult, err error) {
	defer func() { e.metrics.statement(KindReadOnly, err) }()

	if err := validateReadOnly(sqlText); err != nil {
		return nil, err
	}
	db, err := e.registry.Resolve(alias)
	if err != nil {
		return nil, err
	}
	if err := validateSingleStatement("query", db.Adapter.RemoveStringsAndComments(sqlText)); err != nil {
		return nil, err
	}

	conn, err := e.acquire(ctx, db)
	if err != nil {
		return nil, err
	}
	defer e.abort(ctx, alias, conn)

	qctx, cancel := context.WithTimeout(ctx, e.cfg.StatementTimeout)
	defer cancel()

	if _, err := conn.ExecContext(qctx, db.Adapter.BeginReadOnly()); err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction on %s: %w", alias, err)
	}

	rows, err := conn.QueryContext(qctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("query failed on %s: %w", alias, err)
	}
	defer rows.Close()

	data, columns, truncated, err := collectRows(rows, e.cfg.MaxResultRows)
	if err != nil {
		return nil, fmt.Errorf("query failed on %s: %w", alias, err)
	}

	return &QueryResult{
		Database:  alias,
		Rows:      data,
		RowCount:  len(data),
		Columns:   columns,
		Truncated: truncated,
	}, nil
}

// Execute runs a write statement inside BEGIN and parks the connection in
// the transaction table. The returned id must be passed to Commit or Rollback.
func (e *Executor) Execute(ctx context.Context, alias, sqlText string) (result *ExecResult, err error) {
	defer func() { e.metrics.statement(KindOther, err) }()

	if err := validateWrite(sqlText); err != nil {
		return nil, err
	}
	if !e.admission.TryAcquire(1) {
		e.metrics.rejected()
		return nil, fmt.Errorf("%w (limit %d): commit or roll back an open transaction and retry",
			ErrAdmissionLimit, e.cfg.MaxPendingTransactions)
	}
	// Until the transaction is parked this function owns conn and the
	// admission slot. The deferred cleanup also runs on panic.
	var conn *sql.Conn
	parked := false
	defer func() {
		if parked {
			return
		}
		if conn != nil {
			e.abort(ctx, alias, conn)
		}
		e.admission.Release(1)
	}()

	db, err := e.registry.Resolve(alias)
	if err != nil {
		return nil, err
	}
	cleaned := db.Adapter.RemoveStringsAndComments(sqlText)
	if err := validateSingleStatement("execute", cleaned); err != nil {
		return nil, err
	}
	conn, err = e.acquire(ctx, db)
	if err != nil {
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, e.cfg.StatementTimeout)
	defer cancel()

	if _, err := conn.ExecContext(qctx, "BEGIN"); err != nil {
		return nil, fmt.Errorf("failed to begin transaction on %s: %w", alias, err)
	}

	result = &ExecResult{Database: alias, Command: commandTag(sqlText)}
	if hasReturning(cleaned) {
		err = e.execReturning(qctx, conn, sqlText, result)
	} else {
		err = e.exec(qctx, conn, sqlText, result)
	}
	if err != nil {
		return nil, fmt.Errorf("statement failed on %s: %w", alias, err)
	}

	tx := newTransaction(e.newID(), alias, sqlText, conn, func() { e.admission.Release(1) })
	e.table.Add(tx)
	parked = true
	result.TransactionID = tx.ID

	e.logger.Debug("transaction parked",
		zap.String("txid", tx.ID),
		zap.String("alias", alias),
		zap.String("command", result.Command))
	return result, nil
}

func (e *Executor) exec(ctx context.Context, conn *sql.Conn, sqlText string, result *ExecResult) error {
	res, err := conn.ExecContext(ctx, sqlText)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	return nil
}

func (e *Executor) execReturning(ctx context.Context, conn *sql.Conn, sqlText string, result *ExecResult) error {
	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return err
	}
	defer rows.Close()

	data, columns, truncated, err := collectRows(rows, e.cfg.MaxResultRows)
	if err != nil {
		return err
	}
	affected := len(data)
	if truncated {
		// The row that hit the cap was read but not kept.
		rest, err := countRemaining(rows)
		if err != nil {
			return err
		}
		affected += 1 + rest
	}
	result.Rows = data
	result.Columns = columns
	result.Truncated = truncated
	result.RowsAffected = int64(affected)
	return nil
}

// Maintenance runs VACUUM, ANALYZE or CREATE DATABASE outside any transaction.
func (e *Executor) Maintenance(ctx context.Context, alias, sqlText string) (result *MaintenanceResult, err error) {
	defer func() { e.metrics.statement(KindMaintenance, err) }()

	if err := validateMaintenance(sqlText); err != nil {
		return nil, err
	}
	db, err := e.registry.Resolve(alias)
	if err != nil {
		return nil, err
	}
	if err := validateSingleStatement("maintenance", db.Adapter.RemoveStringsAndComments(sqlText)); err != nil {
		return nil, err
	}
	conn, err := e.acquire(ctx, db)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := releaseConn(conn, false); relErr != nil {
			e.logger.Warn("failed to release connection", zap.String("alias", alias), zap.Error(relErr))
		}
	}()

	qctx, cancel := context.WithTimeout(ctx, e.cfg.StatementTimeout)
	defer cancel()

	if _, err := conn.ExecContext(qctx, sqlText); err != nil {
		return nil, fmt.Errorf("maintenance statement failed on %s: %w", alias, err)
	}
	return &MaintenanceResult{Database: alias, Command: commandTag(sqlText)}, nil
}

// lookup finds a pending transaction and claims it. A claim lost to another
// finalizer is reported as ErrTransactionFinalized, distinct from an unknown id.
func (e *Executor) lookup(id string) (*Transaction, error) {
	tx, ok := e.table.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if !tx.claim() {
		if tx.Released() {
			e.table.removeIf(tx)
		}
		return nil, fmt.Errorf("%w: %s", ErrTransactionFinalized, id)
	}
	return tx, nil
}

// Commit commits a pending transaction. When COMMIT fails the transaction is
// rolled back and a *CommitError returned; either way the connection is
// released once and the entry removed.
func (e *Executor) Commit(ctx context.Context, id string) (*FinalizeResult, error) {
	tx, err := e.lookup(id)
	if err != nil {
		return nil, err
	}

	cctx, cancel := e.cleanupContext(ctx)
	defer cancel()

	if commitErr := tx.exec(cctx, "COMMIT"); commitErr != nil {
		rbErr, relErr := reclaim(cctx, e.table, tx)
		e.logger.Warn("commit failed, transaction rolled back",
			zap.String("txid", id),
			zap.String("alias", tx.Alias),
			zap.Error(commitErr),
			zap.NamedError("rollback_error", rbErr),
			zap.NamedError("release_error", relErr))
		e.metrics.finalized(outcomeCommitFailed)
		return nil, &CommitError{ID: id, Alias: tx.Alias, Err: commitErr}
	}

	if err := tx.release(false); err != nil {
		e.logger.Warn("failed to release connection", zap.String("txid", id), zap.Error(err))
	}
	e.table.removeIf(tx)
	e.metrics.finalized(outcomeCommitted)

	return &FinalizeResult{TransactionID: id, Database: tx.Alias, Status: StatusCommitted}, nil
}

// Rollback rolls back a pending transaction. A failing ROLLBACK is only
// logged: the connection is reclaimed either way.
func (e *Executor) Rollback(ctx context.Context, id string) (*FinalizeResult, error) {
	tx, err := e.lookup(id)
	if err != nil {
		return nil, err
	}

	cctx, cancel := e.cleanupContext(ctx)
	defer cancel()

	rbErr, relErr := reclaim(cctx, e.table, tx)
	if rbErr != nil || relErr != nil {
		e.logger.Warn("rollback did not complete cleanly",
			zap.String("txid", id),
			zap.String("alias", tx.Alias),
			zap.NamedError("rollback_error", rbErr),
			zap.NamedError("release_error", relErr))
	}
	e.metrics.finalized(outcomeRolledBack)

	return &FinalizeResult{TransactionID: id, Database: tx.Alias, Status: StatusRolledBack}, nil
}

// RollbackAll force-rolls back every pending transaction during shutdown and
// returns how many it reclaimed. Failures are logged per transaction.
func (e *Executor) RollbackAll(ctx context.Context) int {
	n := 0
	for _, tx := range e.table.Snapshot() {
		if !tx.claim() {
			continue
		}
		cctx, cancel := e.cleanupContext(ctx)
		rbErr, relErr := reclaim(cctx, e.table, tx)
		cancel()
		if rbErr != nil || relErr != nil {
			e.logger.Warn("shutdown rollback did not complete cleanly",
				zap.String("txid", tx.ID),
				zap.String("alias", tx.Alias),
				zap.NamedError("rollback_error", rbErr),
				zap.NamedError("release_error", relErr))
		}
		e.metrics.finalized(outcomeShutdown)
		n++
	}
	return n
}

// Pending lists the open transactions, oldest first.
func (e *Executor) Pending() []TransactionInfo {
	now := time.Now()
	txs := e.table.Snapshot()
	out := make([]TransactionInfo, 0, len(txs))
	for _, tx := range txs {
		out = append(out, TransactionInfo{
			TransactionID: tx.ID,
			Database:      tx.Alias,
			State:         tx.State().String(),
			AgeMs:         tx.Age(now).Milliseconds(),
			SQL:           tx.SQL,
		})
	}
	return out
}
