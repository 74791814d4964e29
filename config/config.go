package config

import (
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "matrixbotd"

	DefaultCredentialsPath = "auth.json"
	DefaultSyncTimeoutMS   = 30000
	DefaultStartupMessage  = "Hello world!"
	DefaultStateFile       = "matrixbotd.db"
	DefaultRetryDelay      = 10 * time.Second
)

var Logger *logrus.Entry

// BotConfig is the immutable runtime configuration. It is decoded once from
// viper and then passed by value.
type BotConfig struct {
	HomeServer         string        `mapstructure:"home_server"`
	UserID             string        `mapstructure:"user_id"`
	RoomID             string        `mapstructure:"room_id"`
	Password           string        `mapstructure:"password"`
	CredentialsPath    string        `mapstructure:"credentials_path"`
	SyncTimeoutMS      int           `mapstructure:"sync_timeout_ms"`
	FullState          bool          `mapstructure:"full_state"`
	SendStartupMessage bool          `mapstructure:"send_startup_message"`
	StartupMessage     string        `mapstructure:"startup_message"`
	StateFile          string        `mapstructure:"state_file"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	Console            ConsoleConfig `mapstructure:"console"`
	TLS                TLSConfig     `mapstructure:"tls"`
	Debug              bool          `mapstructure:"debug"`
	Trace              bool          `mapstructure:"trace"`
}

type ConsoleConfig struct {
	// Wrap message bodies at this many columns, 0 disables wrapping.
	Wrap int `mapstructure:"wrap"`
	// SyntaxHighlighting is "formatter:style" for chroma, e.g.
	// "terminal256:monokai". A bare formatter uses the pygments style. Empty
	// disables highlighting of code blocks.
	SyntaxHighlighting string `mapstructure:"syntaxhighlighting"`
}

type TLSConfig struct {
	Insecure bool   `mapstructure:"insecure"`
	Cert     string `mapstructure:"cert"`
	Key      string `mapstructure:"key"`
}

// keys that can be overridden from the environment even when absent from the
// config file.
var envKeys = []string{
	"home_server", "user_id", "room_id", "password", "credentials_path", "creds_file",
	"sync_timeout_ms", "full_state", "send_startup_message", "startup_message",
	"state_file", "retry_delay", "console.wrap", "console.syntaxhighlighting",
	"tls.insecure", "tls.cert", "tls.key", "debug", "trace",
}

func LoadConfig(cfgfile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(cfgfile)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	// use environment variables
	v.AutomaticEnv()

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s", err)
	}

	// the bot config is immutable once running, only tell the operator
	if runtime.GOOS != "illumos" {
		v.OnConfigChange(func(e fsnotify.Event) {
			if Logger != nil {
				Logger.Infof("config file %s changed, restart to apply", e.Name)
			}
		})
		v.WatchConfig()
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sync_timeout_ms", DefaultSyncTimeoutMS)
	v.SetDefault("full_state", true)
	v.SetDefault("send_startup_message", false)
	v.SetDefault("startup_message", DefaultStartupMessage)
	v.SetDefault("state_file", DefaultStateFile)
	v.SetDefault("retry_delay", DefaultRetryDelay.String())
}

// Parse decodes v into a BotConfig. It does not validate required fields,
// see Validate.
func Parse(v *viper.Viper) (BotConfig, error) {
	var cfg BotConfig

	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc()))
	if err != nil {
		return cfg, fmt.Errorf("error decoding config: %w", err)
	}

	// creds_file is the older name of credentials_path
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = v.GetString("creds_file")
	}

	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = DefaultCredentialsPath
	}

	if cfg.SyncTimeoutMS <= 0 {
		cfg.SyncTimeoutMS = DefaultSyncTimeoutMS
	}

	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return cfg, nil
}

// Validate checks the fields that are required before any network activity.
// The password is checked later, it is only needed without stored credentials.
func (c BotConfig) Validate() error {
	var missing []string

	if c.HomeServer == "" {
		missing = append(missing, "home_server")
	}

	if c.UserID == "" {
		missing = append(missing, "user_id")
	}

	if c.RoomID == "" {
		missing = append(missing, "room_id")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config field(s): %s", strings.Join(missing, ", "))
	}

	u, err := url.Parse(c.HomeServer)
	if err != nil || u.Host == "" {
		return fmt.Errorf("home_server %q is not a valid URL", c.HomeServer)
	}

	// either a localpart the server qualifies at login, or @localpart:server
	full := strings.HasPrefix(c.UserID, "@") && strings.Contains(c.UserID, ":")
	bare := !strings.ContainsAny(c.UserID, "@:")
	if !full && !bare {
		return fmt.Errorf("user_id %q is neither a localpart nor a matrix user id", c.UserID)
	}

	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return errors.New("tls.cert and tls.key must be set together")
	}

	return nil
}
