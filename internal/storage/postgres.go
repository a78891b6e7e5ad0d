package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

// ErrFaceNotFound is returned when no face record matches a lookup.
var ErrFaceNotFound = errors.New("face not found")

// FaceRepository is one table-store session. Every statement commits on its own.
type FaceRepository interface {
	InsertFace(ctx context.Context, rec *models.FaceRecord) error
	FirstUnnamedFace(ctx context.Context) (*models.FaceRecord, error)
	FaceByFaceID(ctx context.Context, faceID string) (*models.FaceRecord, error)
	SetPersonName(ctx context.Context, faceID, personName, originalPhotoID string) error
	FindPhotosByPerson(ctx context.Context, personName string) ([]models.PersonPhoto, error)
	Release()
}

// SessionFactory opens a fresh FaceRepository per invocation.
type SessionFactory interface {
	Session(ctx context.Context) (FaceRepository, error)
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool        *pgxpool.Pool
	table       tableNames
	connectWait time.Duration
}

func NewPostgresStore(cfg config.DatabaseConfig, table config.TableConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	// Connections are dialed lazily by Session.
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	return &PostgresStore{
		pool:        pool,
		table:       newTableNames(table),
		connectWait: cfg.ConnectTimeout,
	}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Session acquires a connection for the duration of one invocation. The wait for
// the connection is bounded by the configured connect timeout.
func (s *PostgresStore) Session(ctx context.Context) (FaceRepository, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.connectWait)
	defer cancel()

	conn, err := s.pool.Acquire(waitCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if err := conn.Ping(waitCtx); err != nil {
		conn.Release()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return newFaceSession(conn, s.table, conn.Release), nil
}

// EnsureSchema creates the face table and its person-name index if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	t := s.table
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			%s TEXT PRIMARY KEY,
			%s TEXT NOT NULL UNIQUE,
			%s TEXT NOT NULL,
			%s TEXT
		)`, t.table, t.pk, t.faceID, t.originalID, t.personName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`, t.personIndex, t.table, t.personName),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// tableNames holds the quoted identifiers of the face table.
type tableNames struct {
	table       string
	pk          string
	faceID      string
	originalID  string
	personName  string
	personIndex string
}

func newTableNames(cfg config.TableConfig) tableNames {
	return tableNames{
		table:       pgx.Identifier{cfg.Name}.Sanitize(),
		pk:          pgx.Identifier{cfg.PKColumn}.Sanitize(),
		faceID:      pgx.Identifier{cfg.FaceIDColumn}.Sanitize(),
		originalID:  pgx.Identifier{cfg.OriginalIDColumn}.Sanitize(),
		personName:  pgx.Identifier{cfg.PersonNameColumn}.Sanitize(),
		personIndex: pgx.Identifier{cfg.Name + "_" + cfg.PersonNameColumn + "_idx"}.Sanitize(),
	}
}

// FaceSession implements FaceRepository on top of a single connection.
type FaceSession struct {
	db      dbtx
	t       tableNames
	release func()
}

func newFaceSession(db dbtx, t tableNames, release func()) *FaceSession {
	if release == nil {
		release = func() {}
	}
	return &FaceSession{db: db, t: t, release: release}
}

func (s *FaceSession) Release() {
	s.release()
}

func (s *FaceSession) InsertFace(ctx context.Context, rec *models.FaceRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3)`,
		s.t.table, s.t.pk, s.t.faceID, s.t.originalID)
	if _, err := s.db.Exec(ctx, query, rec.ID.String(), rec.FaceID, rec.OriginalPhotoID); err != nil {
		return fmt.Errorf("insert face %s: %w", rec.FaceID, err)
	}
	return nil
}

func (s *FaceSession) selectFace() string {
	return fmt.Sprintf(`SELECT %s, %s, %s, %s FROM %s`,
		s.t.pk, s.t.faceID, s.t.originalID, s.t.personName, s.t.table)
}

func scanFace(row pgx.Row) (*models.FaceRecord, error) {
	var (
		f  models.FaceRecord
		id string
	)
	if err := row.Scan(&id, &f.FaceID, &f.OriginalPhotoID, &f.PersonName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFaceNotFound
		}
		return nil, err
	}
	// Rows written by other tools may carry non-UUID keys; keep the zero value then.
	_ = f.ID.UnmarshalText([]byte(id))
	return &f, nil
}

// FirstUnnamedFace returns one face that has no person name yet.
func (s *FaceSession) FirstUnnamedFace(ctx context.Context) (*models.FaceRecord, error) {
	query := s.selectFace() + fmt.Sprintf(` WHERE %s IS NULL LIMIT 1`, s.t.personName)
	f, err := scanFace(s.db.QueryRow(ctx, query))
	if err != nil && !errors.Is(err, ErrFaceNotFound) {
		return nil, fmt.Errorf("get unnamed face: %w", err)
	}
	return f, err
}

func (s *FaceSession) FaceByFaceID(ctx context.Context, faceID string) (*models.FaceRecord, error) {
	query := s.selectFace() + fmt.Sprintf(` WHERE %s = $1 LIMIT 1`, s.t.faceID)
	f, err := scanFace(s.db.QueryRow(ctx, query, faceID))
	if err != nil && !errors.Is(err, ErrFaceNotFound) {
		return nil, fmt.Errorf("get face %s: %w", faceID, err)
	}
	return f, err
}

// SetPersonName rewrites the name, face id and original id of the row keyed by faceID.
func (s *FaceSession) SetPersonName(ctx context.Context, faceID, personName, originalPhotoID string) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = $2, %s = $3 WHERE %s = $2`,
		s.t.table, s.t.personName, s.t.faceID, s.t.originalID, s.t.faceID)
	tag, err := s.db.Exec(ctx, query, personName, faceID, originalPhotoID)
	if err != nil {
		return fmt.Errorf("set person name for %s: %w", faceID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFaceNotFound
	}
	return nil
}

// FindPhotosByPerson returns the distinct original photos labeled with personName.
func (s *FaceSession) FindPhotosByPerson(ctx context.Context, personName string) ([]models.PersonPhoto, error) {
	query := fmt.Sprintf(`SELECT DISTINCT %s, %s FROM %s WHERE %s = $1`,
		s.t.originalID, s.t.personName, s.t.table, s.t.personName)
	rows, err := s.db.Query(ctx, query, personName)
	if err != nil {
		return nil, fmt.Errorf("find photos of %s: %w", personName, err)
	}
	defer rows.Close()

	var photos []models.PersonPhoto
	for rows.Next() {
		var p models.PersonPhoto
		if err := rows.Scan(&p.OriginalPhotoID, &p.PersonName); err != nil {
			return nil, fmt.Errorf("scan person photo: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find photos of %s: %w", personName, err)
	}
	return photos, nil
}
