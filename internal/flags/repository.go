package flags

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/beaconflags/beacon/internal/platform/db"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

const pgUniqueViolation = "23505"

// Repository is the durable store for flags and overrides. The Find* methods
// return (nil, nil) when the record does not exist.
type Repository interface {
	Store
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	ListFlags(ctx context.Context, req ListFlagsRequest) ([]Flag, int, error)
	CreateFlag(ctx context.Context, name string, description *string, enabled bool) (*Flag, error)
	UpdateFlag(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteFlag(ctx context.Context, id uuid.UUID) error
	CreateOverride(ctx context.Context, flagID uuid.UUID, userID string, enabled bool) (*Override, error)
	UpdateOverride(ctx context.Context, flagID uuid.UUID, userID string, enabled bool) error
	DeleteOverride(ctx context.Context, flagID uuid.UUID, userID string) error
	ListOverrides(ctx context.Context, flagID uuid.UUID, req ListOverridesRequest) ([]Override, int, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds a Postgres-backed repository on the pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const flagColumns = "id, name, description, is_enabled, created_at, updated_at"

func scanFlag(row pgx.Row) (*Flag, error) {
	var f Flag
	var description pgtype.Text
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&f.ID, &f.Name, &description, &f.IsEnabled, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if description.Valid {
		f.Description = &description.String
	}
	f.CreatedAt = createdAt.Time
	f.UpdatedAt = updatedAt.Time
	return &f, nil
}

func (r *repository) FindFlagByName(ctx context.Context, name string) (*Flag, error) {
	query := fmt.Sprintf("SELECT %s FROM feature_flags WHERE name = $1", flagColumns)
	return scanFlag(r.db.QueryRow(ctx, query, name))
}

func (r *repository) FindFlagByID(ctx context.Context, id uuid.UUID) (*Flag, error) {
	query := fmt.Sprintf("SELECT %s FROM feature_flags WHERE id = $1", flagColumns)
	return scanFlag(r.db.QueryRow(ctx, query, id))
}

// ListFlags runs the page query and the count concurrently on the pool.
func (r *repository) ListFlags(ctx context.Context, req ListFlagsRequest) ([]Flag, int, error) {
	whereClause := ""
	if req.EnabledOnly {
		whereClause = "WHERE is_enabled"
	}

	var items []Flag
	var total int
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		query := fmt.Sprintf(`
			SELECT %s FROM feature_flags
			%s
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`, flagColumns, whereClause)
		rows, err := r.pool.Query(gctx, query, req.Limit, req.Skip)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			f, err := scanFlag(rows)
			if err != nil {
				return err
			}
			items = append(items, *f)
		}
		return rows.Err()
	})

	g.Go(func() error {
		query := fmt.Sprintf("SELECT COUNT(*) FROM feature_flags %s", whereClause)
		return r.pool.QueryRow(gctx, query).Scan(&total)
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repository) CreateFlag(ctx context.Context, name string, description *string, enabled bool) (*Flag, error) {
	query := fmt.Sprintf(`
		INSERT INTO feature_flags (id, name, description, is_enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING %s
	`, flagColumns)
	flag, err := scanFlag(r.db.QueryRow(ctx, query, uuid.New(), name,
		pgtype.Text{String: getString(description), Valid: description != nil}, enabled))
	if err != nil {
		return nil, mapPgError(err)
	}
	return flag, nil
}

func (r *repository) UpdateFlag(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	query := "UPDATE feature_flags SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	if v, ok := updates["name"]; ok {
		query += fmt.Sprintf(", name = $%d", argPos)
		args = append(args, v)
		argPos++
	}
	if v, ok := updates["description"]; ok {
		query += fmt.Sprintf(", description = $%d", argPos)
		args = append(args, v)
		argPos++
	}
	if v, ok := updates["is_enabled"]; ok {
		query += fmt.Sprintf(", is_enabled = $%d", argPos)
		args = append(args, v)
		argPos++
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFlag removes the flag; its overrides go with it via ON DELETE CASCADE.
func (r *repository) DeleteFlag(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM feature_flags WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const overrideColumns = "id, flag_id, user_id, is_enabled, created_at, updated_at"

func scanOverride(row pgx.Row) (*Override, error) {
	var o Override
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&o.ID, &o.FlagID, &o.UserID, &o.IsEnabled, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	o.CreatedAt = createdAt.Time
	o.UpdatedAt = updatedAt.Time
	return &o, nil
}

func (r *repository) FindOverride(ctx context.Context, flagID uuid.UUID, userID string) (*Override, error) {
	query := fmt.Sprintf("SELECT %s FROM flag_user_overrides WHERE flag_id = $1 AND user_id = $2", overrideColumns)
	return scanOverride(r.db.QueryRow(ctx, query, flagID, userID))
}

func (r *repository) CreateOverride(ctx context.Context, flagID uuid.UUID, userID string, enabled bool) (*Override, error) {
	query := fmt.Sprintf(`
		INSERT INTO flag_user_overrides (id, flag_id, user_id, is_enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING %s
	`, overrideColumns)
	override, err := scanOverride(r.db.QueryRow(ctx, query, uuid.New(), flagID, userID, enabled))
	if err != nil {
		return nil, mapPgError(err)
	}
	return override, nil
}

func (r *repository) UpdateOverride(ctx context.Context, flagID uuid.UUID, userID string, enabled bool) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE flag_user_overrides SET is_enabled = $1, updated_at = NOW() WHERE flag_id = $2 AND user_id = $3",
		enabled, flagID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteOverride(ctx context.Context, flagID uuid.UUID, userID string) error {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM flag_user_overrides WHERE flag_id = $1 AND user_id = $2", flagID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListOverrides(ctx context.Context, flagID uuid.UUID, req ListOverridesRequest) ([]Override, int, error) {
	var items []Override
	var total int
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		query := fmt.Sprintf(`
			SELECT %s FROM flag_user_overrides
			WHERE flag_id = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`, overrideColumns)
		rows, err := r.pool.Query(gctx, query, flagID, req.Limit, req.Skip)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			o, err := scanOverride(rows)
			if err != nil {
				return err
			}
			items = append(items, *o)
		}
		return rows.Err()
	})

	g.Go(func() error {
		return r.pool.QueryRow(gctx,
			"SELECT COUNT(*) FROM flag_user_overrides WHERE flag_id = $1", flagID).Scan(&total)
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}

func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
