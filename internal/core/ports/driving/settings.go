package driving

import "github.com/custodia-labs/strata/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// Set updates a single setting by its configuration key.
	Set(key, value string) error

	// Validate checks that the settings are usable.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings

	// Values returns every effective setting as text, in key order.
	Values() ([]Setting, error)
}

// Setting is one effective configuration value.
type Setting struct {
	Key    string
	Value  string
	Secret bool
}
