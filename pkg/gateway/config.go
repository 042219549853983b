// Copyright 2024-2026 Aiku AI

package gateway

import (
	_ "embed"
	"fmt"
	"text/template"
	"time"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/id"
)

//go:embed example-config.yaml
var ExampleConfig string

const (
	defaultListenAddr      = ":6667"
	defaultServerName      = "mautrix-ircd"
	defaultWelcomeTemplate = "Welcome to {{.ServerName}}, {{.Nick}}!{{.Nick}}@{{.Homeserver}}"
	defaultPollTimeout     = 30
	defaultLoginRetries    = 3
	defaultPollRetries     = 5
)

// Config holds the gateway configuration.
type Config struct {
	HomeserverURL string `yaml:"homeserver_url"`
	ListenAddr    string `yaml:"listen_addr"`
	ServerName    string `yaml:"server_name"`
	// AdminAPIAddr is the listen address for the admin HTTP API serving
	// /metrics and /api/sessions. Empty disables it.
	AdminAPIAddr    string `yaml:"admin_api_addr"`
	WelcomeTemplate string `yaml:"welcome_template"`
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout   int  `yaml:"poll_timeout"`
	DedupCapacity int  `yaml:"dedup_capacity"`
	LoginRetries  int  `yaml:"login_retries"`
	PollRetries   int  `yaml:"poll_retries"`
	LogoutOnQuit  bool `yaml:"logout_on_quit"`

	Logging zeroconfig.Config `yaml:"logging"`

	welcomeTemplate *template.Template `yaml:"-"`
}

// WelcomeParams holds the parameters for rendering the welcome template.
type WelcomeParams struct {
	Nick       string
	UserID     id.UserID
	Homeserver string
	ServerName string
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess fills in defaults and compiles the welcome template.
func (c *Config) PostProcess() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.ServerName == "" {
		c.ServerName = defaultServerName
	}
	if c.WelcomeTemplate == "" {
		c.WelcomeTemplate = defaultWelcomeTemplate
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = DefaultDedupCapacity
	}
	if c.LoginRetries <= 0 {
		c.LoginRetries = defaultLoginRetries
	}
	if c.PollRetries <= 0 {
		c.PollRetries = defaultPollRetries
	}
	var err error
	c.welcomeTemplate, err = template.New("welcome").Parse(c.WelcomeTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse welcome template: %w", err)
	}
	return nil
}

// PollTimeoutDuration returns the long-poll timeout.
func (c *Config) PollTimeoutDuration() time.Duration {
	return time.Duration(c.PollTimeout) * time.Second
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "homeserver_url")
	helper.Copy(up.Str, "listen_addr")
	helper.Copy(up.Str, "server_name")
	helper.Copy(up.Str, "admin_api_addr")
	helper.Copy(up.Str, "welcome_template")
	helper.Copy(up.Int, "poll_timeout")
	helper.Copy(up.Int, "dedup_capacity")
	helper.Copy(up.Int, "login_retries")
	helper.Copy(up.Int, "poll_retries")
	helper.Copy(up.Bool, "logout_on_quit")
	helper.Copy(up.Map, "logging")
}

// Upgrader returns the upgrader that merges a user config into the example
// config.
func Upgrader() *up.StructUpgrader {
	return &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks:         nil,
		Base:           ExampleConfig,
	}
}

// LoadConfig reads the config at path, upgrades it against the example
// config (writing the result back when save is set) and post-processes it.
func LoadConfig(path string, save bool) (*Config, error) {
	data, _, err := up.Do(path, save, Upgrader())
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and post-processes a YAML config.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FormatWelcome renders the text of the 001 reply.
func (c *Config) FormatWelcome(params WelcomeParams) string {
	fallback := "Welcome to " + params.ServerName + ", " + params.Nick
	if c.welcomeTemplate == nil {
		return fallback
	}
	var buf []byte
	err := c.welcomeTemplate.Execute(
		(*templateBuffer)(&buf),
		params,
	)
	if err != nil {
		return fallback
	}
	return string(buf)
}

// templateBuffer is a simple io.Writer that appends to a byte slice.
type templateBuffer []byte

func (b *templateBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
