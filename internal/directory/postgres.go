package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"clinicsched/backend/internal/store"
)

type LocationProvider struct {
	bun.BaseModel `bun:"table:location_providers"`

	LocationID string    `bun:"location_id,pk"`
	ProviderID string    `bun:"provider_id,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type Postgres struct {
	db bun.IDB
}

func NewPostgres(db bun.IDB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) FindProviderForLocation(ctx context.Context, locationID string) (string, error) {
	var row LocationProvider
	err := p.db.NewSelect().
		Model(&row).
		Where("location_id = ?", locationID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return row.ProviderID, nil
}

// Assign upserts the provider responsible for a location.
func (p *Postgres) Assign(ctx context.Context, locationID, providerID string) error {
	row := LocationProvider{LocationID: locationID, ProviderID: providerID}
	_, err := p.db.NewInsert().
		Model(&row).
		On("CONFLICT (location_id) DO UPDATE").
		Set("provider_id = EXCLUDED.provider_id").
		Exec(ctx)
	return err
}
