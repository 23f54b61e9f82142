package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/docverify/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	shipment_id  TEXT NOT NULL DEFAULT '',
	doc_type     TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	record       TEXT NOT NULL,
	validation   TEXT NOT NULL,
	is_valid     INTEGER NOT NULL,
	completeness INTEGER NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS verifications (
	id           TEXT PRIMARY KEY,
	shipment_id  TEXT NOT NULL DEFAULT '',
	pair         TEXT NOT NULL,
	reference_id TEXT NOT NULL DEFAULT '',
	dependent_id TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	verified     INTEGER NOT NULL,
	passed       INTEGER NOT NULL,
	total        INTEGER NOT NULL,
	result       TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS verification_checks (
	verification_id TEXT NOT NULL REFERENCES verifications(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	name            TEXT NOT NULL,
	passed          INTEGER NOT NULL,
	note            TEXT NOT NULL,
	PRIMARY KEY (verification_id, position)
);

CREATE INDEX IF NOT EXISTS idx_documents_shipment ON documents(shipment_id);
CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents(doc_type);
CREATE INDEX IF NOT EXISTS idx_verifications_shipment ON verifications(shipment_id);
CREATE INDEX IF NOT EXISTS idx_verifications_status ON verifications(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *model.StoredDocument) error {
	if err := checkDocument(doc); err != nil {
		return err
	}
	record, validation, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	rec := doc.Record
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, shipment_id, doc_type, source, record, validation, is_valid, completeness, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET shipment_id = excluded.shipment_id, doc_type = excluded.doc_type,
		 source = excluded.source, record = excluded.record, validation = excluded.validation,
		 is_valid = excluded.is_valid, completeness = excluded.completeness`,
		rec.ID(), rec.ShipmentID(), string(rec.DocType()), doc.Source, string(record), string(validation),
		doc.Validation.IsValid, doc.Validation.Completeness, rec.CreatedAt(),
	)
	return eris.Wrapf(err, "sqlite: save document %s", rec.ID())
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.StoredDocument, error) {
	var record, validation, source string
	err := s.db.QueryRowContext(ctx,
		`SELECT record, validation, source FROM documents WHERE id = ?`, id,
	).Scan(&record, &validation, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: document %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", id)
	}
	return decodeDocument([]byte(record), []byte(validation), source)
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.StoredDocument, error) {
	query := `SELECT record, validation, source FROM documents WHERE 1=1`
	var args []any

	if filter.ShipmentID != "" {
		query += ` AND shipment_id = ?`
		args = append(args, filter.ShipmentID)
	}
	if filter.DocType != "" {
		query += ` AND doc_type = ?`
		args = append(args, string(filter.DocType))
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limitOf(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close() //nolint:errcheck

	var docs []model.StoredDocument
	for rows.Next() {
		var record, validation, source string
		if err := rows.Scan(&record, &validation, &source); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		doc, err := decodeDocument([]byte(record), []byte(validation), source)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (s *SQLiteStore) SaveVerification(ctx context.Context, res *model.VerificationResult) error {
	if res == nil || res.ID == "" {
		return eris.New("store: verification has no id")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verification")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO verifications (id, shipment_id, pair, reference_id, dependent_id, status, verified, passed, total, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.ShipmentID, res.Pair, res.ReferenceID, res.DependentID, string(res.Status),
		res.Verified, res.PassedChecks, res.TotalChecks, string(data), res.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert verification %s", res.ID)
	}
	for i, c := range res.Checks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO verification_checks (verification_id, position, name, passed, note) VALUES (?, ?, ?, ?, ?)`,
			res.ID, i, c.Name, c.Passed, c.Note,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert check %s", c.Name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit verification")
}

func (s *SQLiteStore) GetVerification(ctx context.Context, id string) (*model.VerificationResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM verifications WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: verification %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get verification %s", id)
	}
	return decodeVerification([]byte(data))
}

func (s *SQLiteStore) ListVerifications(ctx context.Context, filter VerificationFilter) ([]model.VerificationResult, error) {
	query := `SELECT result FROM verifications WHERE 1=1`
	var args []any

	if filter.ShipmentID != "" {
		query += ` AND shipment_id = ?`
		args = append(args, filter.ShipmentID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOf(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list verifications")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.VerificationResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan verification")
		}
		res, err := decodeVerification([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list verifications iterate")
}
