package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docverify/internal/db"
	"github.com/sells-group/docverify/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlUpsertDocument = `INSERT INTO documents (id, shipment_id, doc_type, source, record, validation, is_valid, completeness, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET shipment_id = EXCLUDED.shipment_id, doc_type = EXCLUDED.doc_type, source = EXCLUDED.source,
record = EXCLUDED.record, validation = EXCLUDED.validation, is_valid = EXCLUDED.is_valid, completeness = EXCLUDED.completeness`
	sqlGetDocument     = `SELECT record, validation, source FROM documents WHERE id = $1`
	sqlInsertVerify    = `INSERT INTO verifications (id, shipment_id, pair, reference_id, dependent_id, status, verified, passed, total, result, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	sqlGetVerification = `SELECT result FROM verifications WHERE id = $1`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"upsert_document":     sqlUpsertDocument,
	"get_document":        sqlGetDocument,
	"insert_verification": sqlInsertVerify,
	"get_verification":    sqlGetVerification,
}

var checkColumns = []string{"verification_id", "position", "name", "passed", "note"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	shipment_id  TEXT NOT NULL DEFAULT '',
	doc_type     TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	record       JSONB NOT NULL,
	validation   JSONB NOT NULL,
	is_valid     BOOLEAN NOT NULL,
	completeness INTEGER NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS verifications (
	id           TEXT PRIMARY KEY,
	shipment_id  TEXT NOT NULL DEFAULT '',
	pair         TEXT NOT NULL,
	reference_id TEXT NOT NULL DEFAULT '',
	dependent_id TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	verified     BOOLEAN NOT NULL,
	passed       INTEGER NOT NULL,
	total        INTEGER NOT NULL,
	result       JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS verification_checks (
	verification_id TEXT NOT NULL REFERENCES verifications(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	name            TEXT NOT NULL,
	passed          BOOLEAN NOT NULL,
	note            TEXT NOT NULL,
	PRIMARY KEY (verification_id, position)
);

CREATE INDEX IF NOT EXISTS idx_documents_shipment ON documents(shipment_id);
CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents(doc_type);
CREATE INDEX IF NOT EXISTS idx_verifications_shipment ON verifications(shipment_id);
CREATE INDEX IF NOT EXISTS idx_verifications_status ON verifications(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveDocument(ctx context.Context, doc *model.StoredDocument) error {
	if err := checkDocument(doc); err != nil {
		return err
	}
	record, validation, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	rec := doc.Record
	_, err = s.pool.Exec(ctx, sqlUpsertDocument,
		rec.ID(), rec.ShipmentID(), string(rec.DocType()), doc.Source, record, validation,
		doc.Validation.IsValid, doc.Validation.Completeness, rec.CreatedAt(),
	)
	return eris.Wrapf(err, "postgres: save document %s", rec.ID())
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.StoredDocument, error) {
	var record, validation []byte
	var source string
	err := s.pool.QueryRow(ctx, sqlGetDocument, id).Scan(&record, &validation, &source)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: document %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	return decodeDocument(record, validation, source)
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.StoredDocument, error) {
	query := `SELECT record, validation, source FROM documents WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ShipmentID != "" {
		query += fmt.Sprintf(` AND shipment_id = $%d`, argIdx)
		args = append(args, filter.ShipmentID)
		argIdx++
	}
	if filter.DocType != "" {
		query += fmt.Sprintf(` AND doc_type = $%d`, argIdx)
		args = append(args, string(filter.DocType))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at ASC, id ASC LIMIT $%d`, argIdx)
	args = append(args, limitOf(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.StoredDocument
	for rows.Next() {
		var record, validation []byte
		var source string
		if err := rows.Scan(&record, &validation, &source); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		doc, err := decodeDocument(record, validation, source)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

// SaveVerification writes the verdict row and COPYs its checks in one
// transaction.
func (s *PostgresStore) SaveVerification(ctx context.Context, res *model.VerificationResult) error {
	if res == nil || res.ID == "" {
		return eris.New("store: verification has no id")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verification")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, sqlInsertVerify,
		res.ID, res.ShipmentID, res.Pair, res.ReferenceID, res.DependentID, string(res.Status),
		res.Verified, res.PassedChecks, res.TotalChecks, data, res.CreatedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert verification %s", res.ID)
	}

	rows := make([][]any, 0, len(res.Checks))
	for i, c := range res.Checks {
		rows = append(rows, []any{res.ID, i, c.Name, c.Passed, c.Note})
	}
	if _, err := db.CopyFrom(ctx, tx, "verification_checks", checkColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy checks for %s", res.ID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit verification")
}

func (s *PostgresStore) GetVerification(ctx context.Context, id string) (*model.VerificationResult, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, sqlGetVerification, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: verification %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get verification %s", id)
	}
	return decodeVerification(data)
}

func (s *PostgresStore) ListVerifications(ctx context.Context, filter VerificationFilter) ([]model.VerificationResult, error) {
	query := `SELECT result FROM verifications WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ShipmentID != "" {
		query += fmt.Sprintf(` AND shipment_id = $%d`, argIdx)
		args = append(args, filter.ShipmentID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOf(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list verifications")
	}
	defer rows.Close()

	var out []model.VerificationResult
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan verification")
		}
		res, err := decodeVerification(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list verifications iterate")
}
