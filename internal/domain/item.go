package domain

import "context"

// Item is a bookable resource. Status is the "bookable at all" switch,
// independent of any specific reservation.
type Item struct {
	ID          int64
	ItemType    string
	Description string
	Status      bool
}

// ItemRepository defines data access for items
type ItemRepository interface {
	GetByID(ctx context.Context, id int64) (*Item, error)
	List(ctx context.Context) ([]*Item, error)
	Create(ctx context.Context, item *Item) error
	Update(ctx context.Context, item *Item) error
}
