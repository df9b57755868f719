// Package config loads instance-provision settings from an optional YAML
// file, INSTANCE_PROVISION_* environment variables and bound CLI flags,
// in viper's usual precedence.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/viper"

	"instance-provision/src/events"
	"instance-provision/src/layout"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// INSTANCE_PROVISION_LOG_LEVEL for log.level.
	EnvPrefix = "INSTANCE_PROVISION"
	// FileName is the config file name searched without extension.
	FileName = "instance-provision"
)

// Keys.
const (
	KeyNetworkRoot      = "network.root"
	KeyRenderTemplates  = "render.templates"
	KeyRenderManifest   = "render.manifest"
	KeyLogLevel         = "log.level"
	KeyLogFormat        = "log.format"
	KeyNATSURL          = "events.nats_url"
	KeySubjectPrefix    = "events.subject_prefix"
	KeyMetricsTextfile  = "metrics.textfile"
	KeyBasisDir         = "layout.basis_dir"
	KeyDefaultDir       = "layout.default_dir"
	KeyPlayerDefaultDir = "layout.player_default_dir"
	KeyPublicDir        = "layout.public_dir"
)

type Config struct {
	Network NetworkConfig `mapstructure:"network"`
	Render  RenderConfig  `mapstructure:"render"`
	Log     LogConfig     `mapstructure:"log"`
	Events  EventsConfig  `mapstructure:"events"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Layout  LayoutConfig  `mapstructure:"layout"`
}

type NetworkConfig struct {
	// Root is the network root, an absolute path or dir:/path.
	Root string `mapstructure:"root"`
}

type RenderConfig struct {
	// Templates is a directory of *.tmpl files rendered into every
	// instance; empty disables template rendering.
	Templates string `mapstructure:"templates"`
	// Manifest writes instance.yml into every instance.
	Manifest bool `mapstructure:"manifest"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EventsConfig struct {
	// NATSURL enables event publishing when set.
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type MetricsConfig struct {
	// Textfile receives the Prometheus text dump after each command.
	Textfile string `mapstructure:"textfile"`
}

type LayoutConfig struct {
	BasisDir         string `mapstructure:"basis_dir"`
	DefaultDir       string `mapstructure:"default_dir"`
	PlayerDefaultDir string `mapstructure:"player_default_dir"`
	PublicDir        string `mapstructure:"public_dir"`
}

// SetDefaults registers every key so environment overrides are seen by
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	names := layout.DefaultNames()
	v.SetDefault(KeyNetworkRoot, "")
	v.SetDefault(KeyRenderTemplates, "")
	v.SetDefault(KeyRenderManifest, true)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyNATSURL, "")
	v.SetDefault(KeySubjectPrefix, events.DefaultSubjectPrefix)
	v.SetDefault(KeyMetricsTextfile, "")
	v.SetDefault(KeyBasisDir, names.Basis)
	v.SetDefault(KeyDefaultDir, names.Default)
	v.SetDefault(KeyPlayerDefaultDir, names.PlayerDefault)
	v.SetDefault(KeyPublicDir, names.Public)
}

// NewViper returns a viper instance with defaults and environment
// overrides wired.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SearchPaths are the directories searched for the config file when none
// is named explicitly.
func SearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", FileName))
	}
	return paths
}

// Load reads cfgFile, or searches SearchPaths when cfgFile is empty, and
// decodes the merged settings. A missing searched file is fine; a missing
// explicit file is an error.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, oops.In("config").With("file", cfgFile).Wrapf(err, "read config file")
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, oops.In("config").Wrapf(err, "decode config")
	}
	return cfg, nil
}

// Names returns the reserved directory names.
func (c Config) Names() layout.Names {
	return layout.Names{
		Basis:         c.Layout.BasisDir,
		Default:       c.Layout.DefaultDir,
		PlayerDefault: c.Layout.PlayerDefaultDir,
		Public:        c.Layout.PublicDir,
	}
}

// NetworkLayout parses the network root and builds the layout.
func (c Config) NetworkLayout() (layout.Layout, error) {
	if strings.TrimSpace(c.Network.Root) == "" {
		return layout.Layout{}, oops.In("config").Errorf("network root is not set (use --network, %s or %s_NETWORK_ROOT)", KeyNetworkRoot, EnvPrefix)
	}
	return layout.New(c.Network.Root, c.Names())
}
