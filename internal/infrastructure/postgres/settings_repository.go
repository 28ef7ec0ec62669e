package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/zjrosen/followup/internal/settings"
)

// settingsRepository implements settings.Repository using Postgres.
type settingsRepository struct {
	db *bun.DB
}

func newSettingsRepository(db *bun.DB) *settingsRepository {
	return &settingsRepository{db: db}
}

// Ensure settingsRepository implements settings.Repository.
var _ settings.Repository = (*settingsRepository)(nil)

// Get returns the value for key.
func (r *settingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.NewSelect().Model((*settingModel)(nil)).
		Column("value").
		Where("key = ?", key).
		Scan(ctx, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &settings.NotFoundError{Key: key}
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// Set creates or overwrites the value for key.
func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	m := &settingModel{Key: key, Value: value, UpdatedAt: time.Now()}
	if _, err := r.db.NewInsert().Model(m).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// Delete removes the key. Deleting an absent key is a no-op.
func (r *settingsRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.NewDelete().Model((*settingModel)(nil)).
		Where("key = ?", key).Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

// All returns every stored key and value.
func (r *settingsRepository) All(ctx context.Context) (map[string]string, error) {
	var ms []*settingModel
	if err := r.db.NewSelect().Model(&ms).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	out := map[string]string{}
	for _, m := range ms {
		out[m.Key] = m.Value
	}
	return out, nil
}
