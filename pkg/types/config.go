package types

import "errors"

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// DictionaryPath points at the prebuilt, read-only dictionary database.
	// When empty the store attaches without a dictionary and lookups return
	// ErrDictionaryNotLoaded.
	DictionaryPath string `json:"dictionary_path" yaml:"dictionary_path"`

	// HalfLifeDays controls how fast old test results lose weight in the
	// time-weighted correctness score. Zero selects DefaultHalfLifeDays.
	HalfLifeDays float64 `json:"half_life_days" yaml:"half_life_days"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// DefaultHalfLifeDays is the half-life used when Config.HalfLifeDays is zero.
const DefaultHalfLifeDays = 7.0

// Config validation errors.
var (
	ErrBackendEmpty     = errors.New("backend must not be empty")
	ErrBackendUnknown   = errors.New("unknown backend")
	ErrHalfLifeNegative = errors.New("half-life must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.HalfLifeDays < 0 {
		return ErrHalfLifeNegative
	}
	return nil
}

// GetHalfLifeDays returns the configured half-life or the default.
func (c Config) GetHalfLifeDays() float64 {
	if c.HalfLifeDays == 0 {
		return DefaultHalfLifeDays
	}
	return c.HalfLifeDays
}
