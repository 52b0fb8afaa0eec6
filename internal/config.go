package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notebridge/internal/convert"
	"github.com/starford/notebridge/internal/transfer"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Store  StoreConfig       `yaml:"store"`
	Export ExportConfig      `yaml:"export"`
	Import ImportConfig      `yaml:"import"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig holds the SQLite note store location.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	Dir             string           `yaml:"dir"`
	Format          convert.Format   `yaml:"format"`
	JSONMode        convert.JSONMode `yaml:"json_mode"`
	Frontmatter     bool             `yaml:"frontmatter"`
	CopyAttachments bool             `yaml:"copy_attachments"`
	Workers         int              `yaml:"workers"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.Format, validation.Required, validation.In(convert.FormatMarkdown, convert.FormatJSON)),
		validation.Field(&c.JSONMode, validation.Required, validation.In(convert.JSONMinimal, convert.JSONFull)),
		validation.Field(&c.Workers, validation.Min(0), validation.Max(transfer.MaxWorkers)),
	)
}

// ImportConfig holds import defaults and the inbox settings.
//
// Folder overrides the folder of every imported note; DefaultFolder only
// applies to notes that carry none.
type ImportConfig struct {
	Dir           string            `yaml:"dir"`
	Folder        string            `yaml:"folder"`
	DefaultFolder string            `yaml:"default_folder"`
	Strategy      transfer.Strategy `yaml:"strategy"`
	Debounce      time.Duration     `yaml:"debounce"`
}

// Validate validates the import configuration.
func (c *ImportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.Strategy, validation.Required, validation.In(
			transfer.StrategySkip, transfer.StrategyReplace, transfer.StrategyDuplicate, transfer.StrategyAsk)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path: "./notebridge.db",
		},
		Export: ExportConfig{
			Dir:         "./export",
			Format:      convert.FormatMarkdown,
			JSONMode:    convert.JSONMinimal,
			Frontmatter: true,
			Workers:     transfer.DefaultWorkers,
		},
		Import: ImportConfig{
			Dir:      "./inbox",
			Strategy: transfer.StrategySkip,
			Debounce: 500 * time.Millisecond,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
