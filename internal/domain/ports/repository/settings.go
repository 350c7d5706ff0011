package repository

import "context"

// SettingsRepository is a key/value table of platform-tunable knobs
// (withdrawal caps, cooldowns, coin rate). Values are stored as JSON text;
// in-code defaults apply when a key is absent.
type SettingsRepository interface {
	Get(ctx context.Context, tx Tx, key string) (string, error)
	Set(ctx context.Context, tx Tx, key, value, updatedBy string) error
	All(ctx context.Context, tx Tx) (map[string]string, error)
}
