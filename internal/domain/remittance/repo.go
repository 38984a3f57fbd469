package remittance

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("remittance: not found")

type Repository interface {
	Create(ctx context.Context, r *Remittance) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*Remittance, error)
	GetByCheckNumber(ctx context.Context, orgID uuid.UUID, checkNumber string) (*Remittance, error)
	Update(ctx context.Context, r *Remittance) error
	UpdateStatus(ctx context.Context, orgID, id uuid.UUID, status string) error
	List(ctx context.Context, orgID uuid.UUID, status string, limit, offset int) ([]*Remittance, int, error)

	// Line items
	AddItem(ctx context.Context, li *LineItem) error
	GetItem(ctx context.Context, orgID, id uuid.UUID) (*LineItem, error)
	GetItems(ctx context.Context, remittanceID uuid.UUID) ([]*LineItem, error)
	UpdateItemMatch(ctx context.Context, li *LineItem) error
	// MarkItemPosted flips is_posted under a guard: it reports false when the
	// item was already posted, so concurrent posting runs cannot double-apply.
	MarkItemPosted(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteUnpostedItems(ctx context.Context, remittanceID uuid.UUID) error
}
