package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the durable membership store. A nil Membership with nil
// error means the row does not exist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Get(ctx context.Context, orgID, userID snowflake.ID) (*Membership, error)
	List(ctx context.Context, orgID snowflake.ID) ([]Membership, error)
	Create(ctx context.Context, membership Membership) error
	UpdateSlot(ctx context.Context, id snowflake.ID, slot int, at time.Time) error
	Delete(ctx context.Context, id snowflake.ID) error
}
