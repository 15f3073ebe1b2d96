package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ledgerScope/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS decoded_events (
	id TEXT PRIMARY KEY,
	group_key TEXT NOT NULL,
	contract_address TEXT NOT NULL,
	block_number BIGINT NOT NULL,
	block_timestamp BIGINT NOT NULL,
	tx_hash TEXT NOT NULL,
	log_index BIGINT NOT NULL,
	event_name TEXT NOT NULL,
	abi TEXT NOT NULL,
	params JSONB NOT NULL,
	extras JSONB NOT NULL,
	text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS decoded_events_contract_block ON decoded_events (contract_address, block_number);
CREATE TABLE IF NOT EXISTS tracked_balances (
	contract_address TEXT NOT NULL,
	account TEXT NOT NULL,
	balance NUMERIC NOT NULL,
	as_of_block BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (contract_address, account)
);
CREATE TABLE IF NOT EXISTS extractor_state (
	name TEXT PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Store provides Postgres persistence for decoded events and replayed balances.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore opens a connection pool for dsn.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// WriteGroup upserts a group of events keyed by event id, so reruns over the same range are idempotent.
func (s *Store) WriteGroup(ctx context.Context, key string, events []model.DecodedEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		params, err := json.Marshal(nonNil(event.Params))
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		extras, err := json.Marshal(nonNil(event.Extras))
		if err != nil {
			return fmt.Errorf("encode extras: %w", err)
		}
		batch.Queue(`
			INSERT INTO decoded_events (
				id, group_key, contract_address, block_number, block_timestamp, tx_hash, log_index,
				event_name, abi, params, extras, text, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (id)
			DO UPDATE SET
				group_key = EXCLUDED.group_key,
				block_timestamp = EXCLUDED.block_timestamp,
				event_name = EXCLUDED.event_name,
				abi = EXCLUDED.abi,
				params = EXCLUDED.params,
				extras = EXCLUDED.extras,
				text = EXCLUDED.text,
				updated_at = now()
		`,
			event.ID(),
			key,
			event.ContractAddress,
			int64(event.BlockNumber),
			event.BlockTimestamp,
			event.TransactionHash,
			int64(event.LogIndex),
			event.EventName,
			event.ABIKind,
			params,
			extras,
			event.Text,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertBalances stores the replayed balances of tracked accounts on contract as of block.
func (s *Store) UpsertBalances(ctx context.Context, contract string, block uint64, balances map[string]*big.Int) error {
	if len(balances) == 0 {
		return nil
	}
	accounts := make([]string, 0, len(balances))
	for account := range balances {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	batch := &pgx.Batch{}
	for _, account := range accounts {
		batch.Queue(`
			INSERT INTO tracked_balances (contract_address, account, balance, as_of_block, updated_at)
			VALUES ($1, $2, $3::numeric, $4, now())
			ON CONFLICT (contract_address, account)
			DO UPDATE SET
				balance = EXCLUDED.balance,
				as_of_block = EXCLUDED.as_of_block,
				updated_at = now()
		`,
			model.NormalizeAddress(contract),
			account,
			balances[account].String(),
			int64(block),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range accounts {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the last processed block recorded under name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM extractor_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts the last processed block for name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO extractor_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func nonNil(params model.Params) model.Params {
	if params == nil {
		return model.Params{}
	}
	return params
}
