package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	// UpdateVersioned applies fields only when the stored version matches and bumps it.
	UpdateVersioned(ctx context.Context, db *gorm.DB, sub *Subscription, fields map[string]any) error
	ListBillable(ctx context.Context, db *gorm.DB, anchorOnOrBefore time.Time) ([]Subscription, error)
	ListDueCancellations(ctx context.Context, db *gorm.DB, asOf time.Time) ([]Subscription, error)

	InsertSegment(ctx context.Context, db *gorm.DB, segment *PlanHistory) error
	UpdateSegment(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	DeleteSegment(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindOpenSegment(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*PlanHistory, error)
	FindPendingChange(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*PlanHistory, error)
	FindPendingCancellation(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*PlanHistory, error)
	// FindSegmentEndingAt returns the segment closed exactly at t (the one before a deferred change).
	FindSegmentEndingAt(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, t time.Time) (*PlanHistory, error)
	ListSegments(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]PlanHistory, error)
	ListDuePlanChanges(ctx context.Context, db *gorm.DB, asOf time.Time) ([]PlanHistory, error)
}
