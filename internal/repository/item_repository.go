package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/yourorg/bookingsystem/internal/domain"
	"github.com/yourorg/bookingsystem/pkg/cache"
)

// Items change rarely compared to how often booking requests read them,
// so GetByID keeps a short-lived local cache in front of the table. The
// booking transaction never relies on this cache for its commit decision;
// it re-reads the item row under lock.
const itemCacheTTL = time.Minute

// PostgresItemRepository implements domain.ItemRepository using PostgreSQL
type PostgresItemRepository struct {
	db     *sql.DB
	cache  *cache.Cache[*domain.Item]
	logger *slog.Logger
}

// NewPostgresItemRepository creates a new item repository
func NewPostgresItemRepository(db *sql.DB, logger *slog.Logger) *PostgresItemRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresItemRepository{
		db:     db,
		cache:  cache.New[*domain.Item](),
		logger: logger,
	}
}

// GetByID retrieves an item by ID
func (r *PostgresItemRepository) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	key := itemCacheKey(id)
	if item, ok := r.cache.Get(key); ok {
		return item, nil
	}

	item := &domain.Item{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, item_type, COALESCE(description, ''), status
		FROM items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.ItemType, &item.Description, &item.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	r.cache.Set(key, item, itemCacheTTL)
	return item, nil
}

// List returns all items ordered by ID
func (r *PostgresItemRepository) List(ctx context.Context) ([]*domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, item_type, COALESCE(description, ''), status
		FROM items
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*domain.Item
	for rows.Next() {
		item := &domain.Item{}
		if err := rows.Scan(&item.ID, &item.ItemType, &item.Description, &item.Status); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Create inserts a new item
func (r *PostgresItemRepository) Create(ctx context.Context, item *domain.Item) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO items (item_type, description, status)
		VALUES ($1, $2, $3)
		RETURNING id
	`, item.ItemType, item.Description, item.Status).Scan(&item.ID)
	if err != nil {
		r.logger.Error("failed to create item",
			slog.String("item_type", item.ItemType),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// Update modifies an existing item and drops its cache entry
func (r *PostgresItemRepository) Update(ctx context.Context, item *domain.Item) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE items SET item_type = $1, description = $2, status = $3 WHERE id = $4
	`, item.ItemType, item.Description, item.Status, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	r.cache.Delete(itemCacheKey(item.ID))
	return nil
}

func itemCacheKey(id int64) string {
	return "item:" + strconv.FormatInt(id, 10)
}
