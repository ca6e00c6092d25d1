package credstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // sqlite driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its filesystem and dialect in package globals.
var migrateMu sync.Mutex

// DBTX is the subset of database/sql used by SQLStore.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore keeps records in SQLite or PostgreSQL, one row per API origin.
// Each mutation is a single upsert or delete statement.
type SQLStore struct {
	db       *sql.DB
	dialect  string
	origin   string
	lockPath string
}

// OpenSQLite opens (creating if needed) a SQLite database at path and migrates it.
func OpenSQLite(ctx context.Context, path, origin string) (*SQLStore, error) {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLStore{db: db, dialect: "sqlite3", origin: origin}
	if path != ":memory:" {
		s.lockPath = path + ".lock"
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to PostgreSQL via the pgx stdlib driver and migrates it.
func OpenPostgres(ctx context.Context, dsn, origin string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &SQLStore{db: db, dialect: "postgres", origin: origin}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("migrate %s: %w", s.Name(), err)
	}
	return nil
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) conn() DBTX { return s.db }

func (s *SQLStore) Name() string {
	if s.dialect == "postgres" {
		return "postgres"
	}
	return "sqlite"
}

// LockPath implements Locker for file-backed SQLite databases.
func (s *SQLStore) LockPath() string { return s.lockPath }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) LoadToken(ctx context.Context) (*TokenRecord, error) {
	var rec TokenRecord
	err := s.conn().QueryRowContext(ctx, s.rebind(`
		SELECT ciphertext, sender_public_key, receiver_secret_key, nonce
		FROM token_state WHERE origin = ?`), s.origin).
		Scan(&rec.Ciphertext, &rec.SenderPublicKey, &rec.ReceiverSecretKey, &rec.Nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) SaveToken(ctx context.Context, rec *TokenRecord) error {
	_, err := s.conn().ExecContext(ctx, s.rebind(`
		INSERT INTO token_state (origin, ciphertext, sender_public_key, receiver_secret_key, nonce, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(origin) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			sender_public_key = excluded.sender_public_key,
			receiver_secret_key = excluded.receiver_secret_key,
			nonce = excluded.nonce,
			updated_at = excluded.updated_at
	`), s.origin, rec.Ciphertext, rec.SenderPublicKey, rec.ReceiverSecretKey, rec.Nonce)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteToken(ctx context.Context) error {
	_, err := s.conn().ExecContext(ctx, s.rebind(`DELETE FROM token_state WHERE origin = ?`), s.origin)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *SQLStore) LoadCredential(ctx context.Context) (*Credential, error) {
	var cred Credential
	err := s.conn().QueryRowContext(ctx, s.rebind(`
		SELECT email, password FROM credentials WHERE origin = ?`), s.origin).
		Scan(&cred.Email, &cred.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return &cred, nil
}

func (s *SQLStore) SaveCredential(ctx context.Context, cred *Credential) error {
	_, err := s.conn().ExecContext(ctx, s.rebind(`
		INSERT INTO credentials (origin, email, password, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(origin) DO UPDATE SET
			email = excluded.email,
			password = excluded.password,
			updated_at = excluded.updated_at
	`), s.origin, cred.Email, cred.Password)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteCredential(ctx context.Context) error {
	_, err := s.conn().ExecContext(ctx, s.rebind(`DELETE FROM credentials WHERE origin = ?`), s.origin)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
