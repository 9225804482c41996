package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swapScope/internal/model"
	"swapScope/internal/storage"
)

// Store provides Postgres persistence for analysis reports.
type Store struct {
	pool *pgxpool.Pool
}

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

// Export stores the report and records its pools in the catalog.
func (s *Store) Export(ctx context.Context, report model.Report) error {
	if err := s.SaveReport(ctx, report); err != nil {
		return err
	}
	return s.UpsertPools(ctx, storage.ReportPools(report))
}

// SaveReport writes the job header and its ordered rows in one transaction.
func (s *Store) SaveReport(ctx context.Context, report model.Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO analysis_jobs (job_id, wallet, generated_at, row_count)
		VALUES ($1, $2, $3, $4)
	`, report.JobID, report.Wallet, report.GeneratedAt, len(report.Rows)); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	if len(report.Rows) > 0 {
		batch := &pgx.Batch{}
		for i, row := range report.Rows {
			batch.Queue(`
				INSERT INTO analysis_rows (
					job_id, position, token0_address, token0_symbol, token1_address, token1_symbol,
					pool_address, swap_date, dex_type
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`,
				report.JobID,
				i,
				row.Token0Address,
				row.Token0Symbol,
				row.Token1Address,
				row.Token1Symbol,
				row.PoolAddress,
				row.Date,
				row.DexType,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range report.Rows {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert row: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpsertPools inserts or updates pool catalog entries.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (pool_address, token0, token1, dex, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				dex = EXCLUDED.dex,
				updated_at = now()
		`,
			pool.Address,
			pool.Token0,
			pool.Token1,
			pool.Dex,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
