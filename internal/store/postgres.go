package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS audits (
	id             uuid PRIMARY KEY,
	address        text NOT NULL DEFAULT '',
	network        text NOT NULL DEFAULT '',
	mode           text NOT NULL,
	tier           text NOT NULL,
	security_score integer NOT NULL,
	risk_level     text NOT NULL,
	degraded       boolean NOT NULL,
	finding_count  integer NOT NULL,
	report         jsonb NOT NULL,
	created_at     timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS audits_address_idx ON audits (lower(address), network, created_at DESC);
`

// Postgres stores every audit as a row in the audits table.
type Postgres struct{ Pool *pgxpool.Pool }

// OpenPostgres connects to url and creates the audits table if needed.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	s := &Postgres{Pool: p}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the audits table and its index.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) Save(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec.Report)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO audits (id, address, network, mode, tier, security_score, risk_level,
		                    degraded, finding_count, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Address, rec.Network, rec.Mode, string(rec.Report.Tier), rec.Report.SecurityScore,
		string(rec.Report.RiskLevel), rec.Report.Degraded, len(rec.Report.Findings), body, rec.CreatedAt)
	return err
}

// Recent returns up to n of the most recently created audits.
func (s *Postgres) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, address, network, mode, report, created_at
		FROM audits
		ORDER BY created_at DESC
		LIMIT $1
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec  Record
			body []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Address, &rec.Network, &rec.Mode, &body, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, &rec.Report); err != nil {
			return nil, fmt.Errorf("decode report %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Postgres) Close() {
	s.Pool.Close()
}
