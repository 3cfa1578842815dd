package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/gavel/internal/items"
	"github.com/mcdev12/gavel/internal/models"
)

// ItemStore implements items.Repository using PostgreSQL.
type ItemStore struct {
	pool *pgxpool.Pool
}

// NewItemStore creates an ItemStore backed by the given connection pool.
func NewItemStore(pool *pgxpool.Pool) *ItemStore {
	return &ItemStore{pool: pool}
}

func (s *ItemStore) CreateItem(ctx context.Context, item models.Item) error {
	const query = `
		INSERT INTO items (id, name, base_price, status, metadata)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, query,
		item.ID, item.Name, item.BasePrice, string(item.Status), item.Metadata,
	)
	if err != nil {
		return fmt.Errorf("postgres: create item %s: %w", item.ID, err)
	}
	return nil
}

const itemSelectCols = `id, name, base_price, status, metadata, sold_to, final_price`

func scanItem(scanner interface{ Scan(dest ...any) error }) (models.Item, error) {
	var it models.Item
	var status string
	err := scanner.Scan(
		&it.ID, &it.Name, &it.BasePrice, &status,
		&it.Metadata, &it.SoldTo, &it.FinalPrice,
	)
	if err != nil {
		return models.Item{}, err
	}
	it.Status = models.ItemStatus(status)
	return it, nil
}

func (s *ItemStore) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemSelectCols+` FROM items WHERE id = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, items.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get item %s: %w", id, err)
	}
	return &it, nil
}

func (s *ItemStore) ListByStatus(ctx context.Context, status models.ItemStatus, limit int) ([]models.Item, error) {
	query := `SELECT ` + itemSelectCols + ` FROM items WHERE status = $1 ORDER BY created_at`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *ItemStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ItemStatus) error {
	const query = `UPDATE items SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update item status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return items.ErrNotFound
	}
	return nil
}

func (s *ItemStore) MarkSold(ctx context.Context, id uuid.UUID, soldTo int64, finalPrice int64) error {
	const query = `
		UPDATE items
		SET status = 'SOLD', sold_to = $2, final_price = $3, updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, soldTo, finalPrice)
	if err != nil {
		return fmt.Errorf("postgres: mark item %s sold: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return items.ErrNotFound
	}
	return nil
}

func (s *ItemStore) MarkUnsold(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE items
		SET status = 'UNSOLD', sold_to = NULL, final_price = NULL, updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: mark item %s unsold: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return items.ErrNotFound
	}
	return nil
}
