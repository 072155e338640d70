package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sweetshop/apiserver/internal/db"
	"github.com/sweetshop/apiserver/types"
)

const sweetColumns = `id, name, category, price, quantity, created_at, updated_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SweetRepository handles persistence for sweets.
//
// Stock changes are single conditional statements, so concurrent purchases
// on the same row are serialized by Postgres row locking and can never drive
// quantity below zero.
type SweetRepository struct {
	db *sql.DB
}

func NewSweetRepository(db *sql.DB) *SweetRepository {
	return &SweetRepository{db: db}
}

// List returns sweets matching filter, newest first. A zero filter returns
// the whole catalog.
func (r *SweetRepository) List(ctx context.Context, filter types.SearchFilter) ([]types.Sweet, error) {
	query, args := buildListQuery(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sweets := make([]types.Sweet, 0)
	for rows.Next() {
		sweet, err := scanSweet(rows)
		if err != nil {
			return nil, err
		}
		sweets = append(sweets, sweet)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sweets, nil
}

func (r *SweetRepository) Get(ctx context.Context, id string) (types.Sweet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.Sweet{}, ErrNotFound
	}
	return scanSweet(r.db.QueryRowContext(ctx, `SELECT `+sweetColumns+` FROM sweets WHERE id = $1`, id))
}

func (r *SweetRepository) GetByName(ctx context.Context, name string) (types.Sweet, error) {
	return scanSweet(r.db.QueryRowContext(ctx, `SELECT `+sweetColumns+` FROM sweets WHERE name = $1`, name))
}

func (r *SweetRepository) Create(ctx context.Context, sweet types.Sweet) (types.Sweet, error) {
	now := time.Now().UTC()
	sweet.ID = uuid.NewString()
	sweet.CreatedAt = now
	sweet.UpdatedAt = now

	const query = `
		INSERT INTO sweets (id, name, category, price, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		sweet.ID,
		sweet.Name,
		sweet.Category,
		sweet.Price,
		sweet.Quantity,
		sweet.CreatedAt,
		sweet.UpdatedAt,
	); err != nil {
		return types.Sweet{}, mapWriteError(err)
	}

	return sweet, nil
}

// Update merges patch into the stored sweet. The row is locked for the
// duration of the name check and the write.
func (r *SweetRepository) Update(ctx context.Context, id string, patch types.SweetPatch) (types.Sweet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.Sweet{}, ErrNotFound
	}

	var updated types.Sweet
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		current, err := scanSweet(tx.QueryRowContext(ctx, `SELECT `+sweetColumns+` FROM sweets WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		next := patch.Apply(current)
		if next.Name != current.Name {
			var taken bool
			const existsQuery = `SELECT EXISTS (SELECT 1 FROM sweets WHERE name = $1 AND id <> $2)`
			if err := tx.QueryRowContext(ctx, existsQuery, next.Name, id).Scan(&taken); err != nil {
				return err
			}
			if taken {
				return ErrDuplicate
			}
		}
		next.UpdatedAt = time.Now().UTC()

		const query = `
			UPDATE sweets
			SET name = $1,
				category = $2,
				price = $3,
				quantity = $4,
				updated_at = $5
			WHERE id = $6`
		if _, err := tx.ExecContext(
			ctx,
			query,
			next.Name,
			next.Category,
			next.Price,
			next.Quantity,
			next.UpdatedAt,
			id,
		); err != nil {
			return mapWriteError(err)
		}

		updated = next
		return nil
	})
	if err != nil {
		return types.Sweet{}, err
	}
	return updated, nil
}

func (r *SweetRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	const query = `DELETE FROM sweets WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementIfEnough removes qty units only when at least qty are in stock.
// It returns a *StockError when the row exists but holds fewer units. The
// row stays locked between the check and the write, so Available is the
// quantity the decision was made on.
func (r *SweetRepository) DecrementIfEnough(ctx context.Context, id string, qty int) (types.Sweet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.Sweet{}, ErrNotFound
	}

	var sweet types.Sweet
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var available int
		if err := tx.QueryRowContext(ctx, `SELECT quantity FROM sweets WHERE id = $1 FOR UPDATE`, id).Scan(&available); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if available < qty {
			return &StockError{Available: available, Requested: qty}
		}

		const query = `
			UPDATE sweets
			SET quantity = quantity - $1,
				updated_at = $2
			WHERE id = $3
			RETURNING ` + sweetColumns
		var err error
		sweet, err = scanSweet(tx.QueryRowContext(ctx, query, qty, time.Now().UTC(), id))
		return err
	})
	if err != nil {
		return types.Sweet{}, err
	}
	return sweet, nil
}

// Increment adds qty units to the stored quantity. It returns
// ErrQuantityOverflow when the sum would pass MaxQuantity.
func (r *SweetRepository) Increment(ctx context.Context, id string, qty int) (types.Sweet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.Sweet{}, ErrNotFound
	}

	const query = `
		UPDATE sweets
		SET quantity = quantity + $1,
			updated_at = $2
		WHERE id = $3 AND quantity <= $4 - $1
		RETURNING ` + sweetColumns
	sweet, err := scanSweet(r.db.QueryRowContext(ctx, query, qty, time.Now().UTC(), id, MaxQuantity))
	if err == nil {
		return sweet, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return types.Sweet{}, mapWriteError(err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sweets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return types.Sweet{}, err
	}
	if exists {
		return types.Sweet{}, ErrQuantityOverflow
	}
	return types.Sweet{}, ErrNotFound
}

// Ping verifies the connection is usable.
func (r *SweetRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func buildListQuery(filter types.SearchFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if filter.Name != "" {
		args = append(args, "%"+likeEscaper.Replace(filter.Name)+"%")
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, "%"+likeEscaper.Replace(filter.Category)+"%")
		clauses = append(clauses, fmt.Sprintf("category ILIKE $%d", len(args)))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		clauses = append(clauses, fmt.Sprintf("price >= $%d", len(args)))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		clauses = append(clauses, fmt.Sprintf("price <= $%d", len(args)))
	}

	query := `SELECT ` + sweetColumns + ` FROM sweets`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSweet(row rowScanner) (types.Sweet, error) {
	var sweet types.Sweet
	err := row.Scan(
		&sweet.ID,
		&sweet.Name,
		&sweet.Category,
		&sweet.Price,
		&sweet.Quantity,
		&sweet.CreatedAt,
		&sweet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Sweet{}, ErrNotFound
		}
		return types.Sweet{}, err
	}
	return sweet, nil
}
