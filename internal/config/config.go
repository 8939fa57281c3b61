package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/murajaah/internal/validate"
)

// EnvPrefix marks the environment variables read into the config. Nested
// keys are separated by a double underscore, so MURAJAAH_AUTH__SESSION_TTL
// sets auth.session_ttl.
const EnvPrefix = "MURAJAAH_"

type Server struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text tint"`
}

type Database struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type Auth struct {
	Secret       string        `koanf:"secret" validate:"min=16"`
	SessionTTL   time.Duration `koanf:"session_ttl" validate:"gt=0"`
	CookieName   string        `koanf:"cookie_name" validate:"required"`
	CookieSecure bool          `koanf:"cookie_secure"`
}

// Revision holds the zone calendar days are counted in. Empty means the
// server's local zone.
type Revision struct {
	Timezone string `koanf:"timezone" validate:"omitempty,timezone"`
}

// Catalog says where the Surah table is read from. See catalog.Source.
type Catalog struct {
	Source   string `koanf:"source"`
	File     string `koanf:"file"`
	Branch   string `koanf:"branch"`
	CacheDir string `koanf:"cache_dir"`
}

type CORS struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// Config is the complete application configuration.
type Config struct {
	Server   Server   `koanf:"server"`
	Log      Log      `koanf:"log"`
	Database Database `koanf:"database"`
	Auth     Auth     `koanf:"auth"`
	Revision Revision `koanf:"revision"`
	Catalog  Catalog  `koanf:"catalog"`
	CORS     CORS     `koanf:"cors"`
}

// Default returns the configuration used for keys no source sets.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:      Log{Level: "info", Format: "json"},
		Database: Database{Driver: "sqlite", DSN: "murajaah.db"},
		Auth: Auth{
			SessionTTL: 7 * 24 * time.Hour,
			CookieName: "murajaah_session",
		},
		Catalog: Catalog{File: "surahs.txt", CacheDir: ".murajaah/catalog"},
	}
}

// Flags returns the command line flags. Every config key can be set with
// its dotted name, e.g. --database.dsn.
func Flags() *pflag.FlagSet {
	d := Default()
	f := pflag.NewFlagSet("murajaah", pflag.ContinueOnError)
	f.String("config", "murajaah.yaml", "Path to a YAML config file")
	f.Bool("reconcile", false, "Repair every stored profile and exit")

	f.String("server.addr", d.Server.Addr, "HTTP listen address")
	f.Duration("server.read_timeout", d.Server.ReadTimeout, "HTTP read timeout")
	f.Duration("server.write_timeout", d.Server.WriteTimeout, "HTTP write timeout")
	f.Duration("server.request_timeout", d.Server.RequestTimeout, "Per request handler timeout")
	f.Duration("server.shutdown_timeout", d.Server.ShutdownTimeout, "Graceful shutdown timeout")
	f.String("log.level", d.Log.Level, "Log level: debug, info, warn or error")
	f.String("log.format", d.Log.Format, "Log format: json, text or tint")
	f.String("database.driver", d.Database.Driver, "Database driver: sqlite or postgres")
	f.String("database.dsn", d.Database.DSN, "Database file or connection string")
	f.String("auth.secret", d.Auth.Secret, "Session signing secret")
	f.Duration("auth.session_ttl", d.Auth.SessionTTL, "Session lifetime")
	f.String("auth.cookie_name", d.Auth.CookieName, "Session cookie name")
	f.Bool("auth.cookie_secure", d.Auth.CookieSecure, "Only send the session cookie over HTTPS")
	f.String("revision.timezone", d.Revision.Timezone, "IANA zone days are counted in")
	f.String("catalog.source", d.Catalog.Source, "Surah catalog file or git repository")
	f.String("catalog.file", d.Catalog.File, "Catalog file inside a git repository")
	f.String("catalog.branch", d.Catalog.Branch, "Catalog repository branch")
	f.String("catalog.cache_dir", d.Catalog.CacheDir, "Where catalog repositories are cloned")
	f.StringSlice("cors.allowed_origins", d.CORS.AllowedOrigins, "Origins allowed to call the JSON API")
	return f
}

// Load builds the configuration from, in increasing priority, the defaults,
// the YAML file named by --config, a .env file and the environment, and the
// flags set on the command line. flags must already be parsed.
func Load(flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	path, _ := flags.GetString("config")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || flags.Changed("config") {
				return Config{}, fmt.Errorf("error loading config file %s: %w", path, err)
			}
			slog.Debug("No config file found", "path", path)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("error loading .env: %w", err)
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("error loading environment: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("error loading flags: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps MURAJAAH_AUTH__SESSION_TTL to auth.session_ttl. List values
// are comma separated.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "cors.allowed_origins" {
		var origins []string
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return key, origins
	}
	return key, value
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location returns the zone revision days are counted in.
func (c Config) Location() *time.Location {
	if c.Revision.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Revision.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Reconcile reports whether --reconcile was passed.
func Reconcile(flags *pflag.FlagSet) bool {
	v, _ := flags.GetBool("reconcile")
	return v
}
