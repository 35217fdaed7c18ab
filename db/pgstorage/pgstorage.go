package pgstorage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/log"
)

// PostgresStorage implements the durable cursor store and relay ledger on
// top of a pgx connection pool.
type PostgresStorage struct {
	db *pgxpool.Pool
}

// NewPostgresStorage creates a new Storage
func NewPostgresStorage(cfg Config) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.MaxConns))
	if err != nil {
		log.Errorf("unable to parse DB config: %v", err)
		return nil, err
	}
	db, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		log.Errorf("unable to connect to database: %v", err)
		return nil, err
	}
	return &PostgresStorage{db: db}, nil
}

// Close releases the connection pool.
func (p *PostgresStorage) Close() {
	p.db.Close()
}

// Ping checks the database answers.
func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// GetScanCursor returns the last durably scanned block for a chain.
// Returns gerror.ErrStorageNotFound for a chain never scanned before.
func (p *PostgresStorage) GetScanCursor(ctx context.Context, chain bridge.ChainRef) (uint64, error) {
	const getCursorSQL = "SELECT block_num FROM sync.cursor WHERE chain_family = $1 AND chain_id = $2"
	var blockNum int64
	err := p.db.QueryRow(ctx, getCursorSQL, string(chain.Family), int64(chain.ChainID)).Scan(&blockNum)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, gerror.ErrStorageNotFound
	}
	if err != nil {
		return 0, err
	}
	return uint64(blockNum), nil
}

// SetScanCursor advances the durable scan position of a chain. The update is
// guarded so a cursor never moves backwards through this path.
func (p *PostgresStorage) SetScanCursor(ctx context.Context, chain bridge.ChainRef, blockNum uint64) error {
	const setCursorSQL = `
		INSERT INTO sync.cursor (chain_family, chain_id, block_num, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain_family, chain_id) DO UPDATE
		SET block_num = EXCLUDED.block_num, updated_at = now()
		WHERE sync.cursor.block_num <= EXCLUDED.block_num`
	_, err := p.db.Exec(ctx, setCursorSQL, string(chain.Family), int64(chain.ChainID), int64(blockNum))
	return err
}

// RollbackScanCursor moves a cursor backwards. Only operator-driven rescans
// use it, the caller is expected to have logged why.
func (p *PostgresStorage) RollbackScanCursor(ctx context.Context, chain bridge.ChainRef, blockNum uint64) error {
	const rollbackCursorSQL = `
		UPDATE sync.cursor SET block_num = $3, updated_at = now()
		WHERE chain_family = $1 AND chain_id = $2`
	_, err := p.db.Exec(ctx, rollbackCursorSQL, string(chain.Family), int64(chain.ChainID), int64(blockNum))
	return err
}

// GetScanCursors returns the scan position of every known chain.
func (p *PostgresStorage) GetScanCursors(ctx context.Context) ([]bridge.ScanCursor, error) {
	const getCursorsSQL = "SELECT chain_family, chain_id, block_num, updated_at FROM sync.cursor ORDER BY chain_family, chain_id"
	rows, err := p.db.Query(ctx, getCursorsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cursors []bridge.ScanCursor
	for rows.Next() {
		var (
			family   string
			chainID  int64
			blockNum int64
			updated  time.Time
		)
		if err := rows.Scan(&family, &chainID, &blockNum, &updated); err != nil {
			return nil, err
		}
		cursors = append(cursors, bridge.ScanCursor{
			Chain:     bridge.ChainRef{Family: bridge.ChainFamily(family), ChainID: uint32(chainID)},
			BlockNum:  uint64(blockNum),
			UpdatedAt: updated,
		})
	}
	return cursors, rows.Err()
}

// AddRelayRecord inserts a fresh pending record for an observed deposit.
// Re-observing a known (source, nonce) is a no-op, the bool reports whether
// the row was actually created.
func (p *PostgresStorage) AddRelayRecord(ctx context.Context, record *bridge.RelayRecord) (bool, error) {
	const addRecordSQL = `
		INSERT INTO sync.relay_record (
			chain_family, chain_id, deposit_nonce, source_block, source_tx_index,
			dest_family, dest_chain_id, recipient, amount, resource_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (chain_family, chain_id, deposit_nonce) DO NOTHING`
	intent := &record.Intent
	res, err := p.db.Exec(ctx, addRecordSQL,
		string(intent.Source.Family), int64(intent.Source.ChainID), int64(intent.DepositNonce),
		int64(intent.SourceBlock), int64(intent.SourceTxIndex),
		string(intent.Destination.Family), int64(intent.Destination.ChainID),
		intent.Recipient, intent.Amount.String(), intent.ResourceID[:], string(record.Status))
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

const relayRecordColumns = `
	chain_family, chain_id, deposit_nonce, source_block, source_tx_index,
	dest_family, dest_chain_id, recipient, amount, resource_id, status,
	tx_hashes, retry_count, next_retry_at, fail_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRelayRecord(row rowScanner) (*bridge.RelayRecord, error) {
	var (
		record       bridge.RelayRecord
		sourceFamily string
		sourceChain  int64
		depositNonce int64
		sourceBlock  int64
		sourceTxIdx  int64
		destFamily   string
		destChain    int64
		amount       string
		resourceID   []byte
		status       string
		txHashes     pgtype.ByteaArray
		nextRetryAt  *time.Time
	)
	err := row.Scan(&sourceFamily, &sourceChain, &depositNonce, &sourceBlock, &sourceTxIdx,
		&destFamily, &destChain, &record.Intent.Recipient, &amount, &resourceID, &status,
		&txHashes, &record.RetryCount, &nextRetryAt, &record.FailReason,
		&record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerror.ErrStorageCorrupted, err)
	}
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad amount %q", gerror.ErrStorageCorrupted, amount)
	}
	if len(resourceID) != len(record.Intent.ResourceID) {
		return nil, fmt.Errorf("%w: resource id is %d bytes", gerror.ErrStorageCorrupted, len(resourceID))
	}
	if err := txHashes.AssignTo(&record.TxHashes); err != nil {
		return nil, fmt.Errorf("%w: %v", gerror.ErrStorageCorrupted, err)
	}
	record.Intent.Source = bridge.ChainRef{Family: bridge.ChainFamily(sourceFamily), ChainID: uint32(sourceChain)}
	record.Intent.Destination = bridge.ChainRef{Family: bridge.ChainFamily(destFamily), ChainID: uint32(destChain)}
	record.Intent.DepositNonce = uint64(depositNonce)
	record.Intent.SourceBlock = uint64(sourceBlock)
	record.Intent.SourceTxIndex = uint(sourceTxIdx)
	record.Intent.Amount = amt
	copy(record.Intent.ResourceID[:], resourceID)
	record.Status = bridge.RelayStatus(status)
	if nextRetryAt != nil {
		record.NextRetryAt = *nextRetryAt
	}
	return &record, nil
}

// GetRelayRecord fetches one record by its dedup key.
func (p *PostgresStorage) GetRelayRecord(ctx context.Context, key bridge.RecordKey) (*bridge.RelayRecord, error) {
	getRecordSQL := "SELECT" + relayRecordColumns + `
		FROM sync.relay_record
		WHERE chain_family = $1 AND chain_id = $2 AND deposit_nonce = $3`
	row := p.db.QueryRow(ctx, getRecordSQL, string(key.Source.Family), int64(key.Source.ChainID), int64(key.DepositNonce))
	return scanRelayRecord(row)
}

// MarkDispatched moves a record to Submitted and stamps when it becomes
// dispatchable again if no outcome lands. Terminal rows are left untouched.
func (p *PostgresStorage) MarkDispatched(ctx context.Context, key bridge.RecordKey, nextRetryAt time.Time) error {
	const markSQL = `
		UPDATE sync.relay_record
		SET status = $4, next_retry_at = $5, updated_at = now()
		WHERE chain_family = $1 AND chain_id = $2 AND deposit_nonce = $3
		AND status NOT IN ($6, $7)`
	return p.guardedUpdate(ctx, markSQL,
		string(key.Source.Family), int64(key.Source.ChainID), int64(key.DepositNonce),
		string(bridge.StatusSubmitted), nextRetryAt,
		string(bridge.StatusRelayed), string(bridge.StatusFailed))
}

// ScheduleRetry bumps the retry counter and pushes the next dispatch time.
func (p *PostgresStorage) ScheduleRetry(ctx context.Context, key bridge.RecordKey, retryCount int, nextRetryAt time.Time) error {
	const retrySQL = `
		UPDATE sync.relay_record
		SET retry_count = $4, next_retry_at = $5, updated_at = now()
		WHERE chain_family = $1 AND chain_id = $2 AND deposit_nonce = $3
		AND status NOT IN ($6, $7)`
	return p.guardedUpdate(ctx, retrySQL,
		string(key.Source.Family), int64(key.Source.ChainID), int64(key.DepositNonce),
		retryCount, nextRetryAt,
		string(bridge.StatusRelayed), string(bridge.StatusFailed))
}

// SetRelayStatus transitions a record. Rows already in a terminal state are
// never modified, trying to do so returns gerror.ErrTerminalRecord.
func (p *PostgresStorage) SetRelayStatus(ctx context.Context, key bridge.RecordKey, status bridge.RelayStatus, failReason string) error {
	const setStatusSQL = `
		UPDATE sync.relay_record
		SET status = $4, fail_reason = $5, updated_at = now()
		WHERE chain_family = $1 AND chain_id = $2 AND deposit_nonce = $3
		AND status NOT IN ($6, $7)`
	return p.guardedUpdate(ctx, setStatusSQL,
		string(key.Source.Family), int64(key.Source.ChainID), int64(key.DepositNonce),
		string(status), failReason,
		string(bridge.StatusRelayed), string(bridge.StatusFailed))
}

// AddRelayTxHash appends an attempt hash to the record history.
func (p *PostgresStorage) AddRelayTxHash(ctx context.Context, key bridge.RecordKey, txHash []byte) error {
	const addHashSQL = `
		UPDATE sync.relay_record
		SET tx_hashes = array_append(tx_hashes, $4::bytea), updated_at = now()
		WHERE chain_family = $1 AND chain_id = $2 AND deposit_nonce = $3
		AND NOT ($4::bytea = ANY (tx_hashes))`
	_, err := p.db.Exec(ctx, addHashSQL,
		string(key.Source.Family), int64(key.Source.ChainID), int64(key.DepositNonce), txHash)
	return err
}

func (p *PostgresStorage) guardedUpdate(ctx context.Context, sql string, args ...interface{}) error {
	res, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		// either the row is terminal or the key does not exist at all
		return gerror.ErrTerminalRecord
	}
	return nil
}

// GetDispatchableRecords returns records ready for (re-)dispatch: pending
// rows and submitted rows whose next retry time has passed. Rows that fail
// to decode are skipped and logged, one bad row must not stall the rest.
func (p *PostgresStorage) GetDispatchableRecords(ctx context.Context, now time.Time, limit int) ([]*bridge.RelayRecord, error) {
	dispatchableSQL := "SELECT" + relayRecordColumns + `
		FROM sync.relay_record
		WHERE status = $1 OR (status = $2 AND next_retry_at IS NOT NULL AND next_retry_at <= $3)
		ORDER BY source_block, source_tx_index
		LIMIT $4`
	rows, err := p.db.Query(ctx, dispatchableSQL,
		string(bridge.StatusPending), string(bridge.StatusSubmitted), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// GetRelayRecordsByStatus lists records in one lifecycle state, newest first.
func (p *PostgresStorage) GetRelayRecordsByStatus(ctx context.Context, status bridge.RelayStatus, limit int) ([]*bridge.RelayRecord, error) {
	byStatusSQL := "SELECT" + relayRecordColumns + `
		FROM sync.relay_record
		WHERE status = $1
		ORDER BY updated_at DESC
		LIMIT $2`
	rows, err := p.db.Query(ctx, byStatusSQL, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]*bridge.RelayRecord, error) {
	var records []*bridge.RelayRecord
	for rows.Next() {
		record, err := scanRelayRecord(rows)
		if err != nil {
			if errors.Is(err, gerror.ErrStorageCorrupted) {
				log.Errorf("skipping corrupted relay record: %v", err)
				continue
			}
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountRelayRecordsByStatus returns how many records sit in each state.
func (p *PostgresStorage) CountRelayRecordsByStatus(ctx context.Context) (map[bridge.RelayStatus]uint64, error) {
	const countSQL = "SELECT status, count(*) FROM sync.relay_record GROUP BY status"
	rows, err := p.db.Query(ctx, countSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[bridge.RelayStatus]uint64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[bridge.RelayStatus(status)] = uint64(count)
	}
	return counts, rows.Err()
}
