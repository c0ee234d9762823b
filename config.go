package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "EFDBRIDGE"

type config struct {
	Log       logConfig       `mapstructure:"log"`
	Timezone  string          `mapstructure:"timezone"`
	Channels  channelsConfig  `mapstructure:"channels"`
	CMMS      cmmsConfig      `mapstructure:"cmms"`
	EFD       efdConfig       `mapstructure:"efd"`
	Store     storeConfig     `mapstructure:"store"`
	Reconcile reconcileConfig `mapstructure:"reconcile"`
	Sweep     sweepConfig     `mapstructure:"sweep"`
	HTTP      httpConfig      `mapstructure:"http"`
	Notify    notifyConfig    `mapstructure:"notify"`
}

type logConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type channelsConfig struct {
	File string `mapstructure:"file"`
}

type cmmsConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	AuthURL      string        `mapstructure:"auth_url"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Token        string        `mapstructure:"token"`
	Timeout      time.Duration `mapstructure:"timeout"`
	AssetClass   string        `mapstructure:"asset_class"`
	ConfigClass  string        `mapstructure:"config_class"`
	ProcessClass string        `mapstructure:"process_class"`
}

type efdConfig struct {
	Site           string        `mapstructure:"site"`
	CredentialsURL string        `mapstructure:"credentials_url"`
	URL            string        `mapstructure:"url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type storeConfig struct {
	Driver string `mapstructure:"driver"`
	Dir    string `mapstructure:"dir"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type reconcileConfig struct {
	Ordering string `mapstructure:"ordering"`
}

type sweepConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Period  time.Duration `mapstructure:"period"`
}

type httpConfig struct {
	Addr            string `mapstructure:"addr"`
	JWTSecret       string `mapstructure:"jwt_secret"`
	AnonymousViewer bool   `mapstructure:"anonymous_viewer"`
}

type notifyConfig struct {
	WebhookURL   string        `mapstructure:"webhook_url"`
	Template     string        `mapstructure:"template"`
	Events       []string      `mapstructure:"events"`
	DedupeWindow time.Duration `mapstructure:"dedupe_window"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MQTT         mqttConfig    `mapstructure:"mqtt"`
}

type mqttConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      int    `mapstructure:"qos"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("timezone", "America/Santiago")
	v.SetDefault("channels.file", "channels.yaml")

	v.SetDefault("cmms.base_url", "")
	v.SetDefault("cmms.auth_url", "")
	v.SetDefault("cmms.username", "")
	v.SetDefault("cmms.password", "")
	v.SetDefault("cmms.token", "")
	v.SetDefault("cmms.timeout", 10*time.Second)
	v.SetDefault("cmms.asset_class", "")
	v.SetDefault("cmms.config_class", "")
	v.SetDefault("cmms.process_class", "")

	v.SetDefault("efd.site", "summit")
	v.SetDefault("efd.credentials_url", "")
	v.SetDefault("efd.url", "")
	v.SetDefault("efd.username", "")
	v.SetDefault("efd.password", "")
	v.SetDefault("efd.timeout", 60*time.Second)

	v.SetDefault("store.driver", "file")
	v.SetDefault("store.dir", "checkpoints")
	v.SetDefault("store.path", "checkpoints.db")
	v.SetDefault("store.dsn", "")

	v.SetDefault("reconcile.ordering", "publish-then-commit")

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.period", time.Minute)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.jwt_secret", "")
	v.SetDefault("http.anonymous_viewer", false)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.template", "")
	v.SetDefault("notify.events", []string{})
	v.SetDefault("notify.dedupe_window", 10*time.Minute)
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.mqtt.broker", "")
	v.SetDefault("notify.mqtt.client_id", "efd-cmms-bridge")
	v.SetDefault("notify.mqtt.topic", "")
	v.SetDefault("notify.mqtt.username", "")
	v.SetDefault("notify.mqtt.password", "")
	v.SetDefault("notify.mqtt.qos", 1)
}

// legacyEnv maps keys to the environment names deployments already use.
var legacyEnv = map[string][]string{
	"cmms.base_url":   {"CMMS_BASE_URL"},
	"cmms.auth_url":   {"AUTH_URL"},
	"cmms.username":   {"CMMS_USERNAME"},
	"cmms.password":   {"CMMS_PASSWORD"},
	"cmms.token":      {"ACCESS_TOKEN"},
	"store.dsn":       {"PG_DSN", "DATABASE_URL"},
	"http.jwt_secret": {"AUTH_JWT_SECRET"},
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, prefixed}, names...)
		if err := v.BindEnv(args...); err != nil {
			return err
		}
	}
	return nil
}

// loadDotEnv exports the variables of path that are not already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	dot := viper.New()
	dot.SetConfigFile(path)
	dot.SetConfigType("env")
	if err := dot.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	for _, key := range dot.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, dot.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(v *viper.Viper, cfgFile, envFile string) (config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return config{}, err
	}
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return config{}, err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("efd-bridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/efd-bridge")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

func (c config) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
