package config

import (
	"os"
	"time"

	"github.com/go-yaml/yaml"

	"github.com/totegamma/nostrconnect/internal/domain"
)

const PassphraseEnv = "NOSTRCONNECT_PASSPHRASE"

type Config struct {
	Session    Session    `yaml:"session"`
	Delegation Delegation `yaml:"delegation"`
	Store      Store      `yaml:"store"`
	Events     Events     `yaml:"events"`
	Server     Server     `yaml:"server"`
	Log        Log        `yaml:"log"`
}

type Session struct {
	Name             string        `yaml:"name"`
	Namespace        string        `yaml:"namespace"`
	ConnectRelay     string        `yaml:"connectRelay"`
	Relays           []string      `yaml:"relays"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	RequestTimeout   time.Duration `yaml:"requestTimeout"`
	QueueDepth       int           `yaml:"queueDepth"`
}

type Delegation struct {
	Kinds                  []int         `yaml:"kinds"`
	ValidFor               time.Duration `yaml:"validFor"`
	DropSignerAfterInstall bool          `yaml:"dropSignerAfterInstall"`
}

type Store struct {
	Driver        string `yaml:"driver"` // memory, file, bolt, redis, memcache, postgres
	Path          string `yaml:"path"`
	Passphrase    string `yaml:"passphrase"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	PostgresDsn   string `yaml:"postgresDsn"`
}

type Events struct {
	RedisAddr string `yaml:"redisAddr"`
	Topic     string `yaml:"topic"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	Token         string `yaml:"token"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

func Default() Config {
	return Config{
		Session: Session{
			Name:             "dartstr",
			Namespace:        "default",
			ConnectRelay:     "ws://localhost:8081",
			HandshakeTimeout: 2 * time.Minute,
			RequestTimeout:   30 * time.Second,
			QueueDepth:       64,
		},
		Delegation: Delegation{
			Kinds:    []int{1, 77},
			ValidFor: 2 * time.Hour,
		},
		Store: Store{
			Driver: "file",
		},
		Events: Events{
			Topic: "nostrconnect.session",
		},
		Server: Server{
			Listen: ":8000",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	config.applyDefaults()

	return config, nil
}

// LoadOrDefault is Load, except that an empty path yields Default.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		config := Default()
		config.applyDefaults()
		return config, nil
	}
	return Load(path)
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Session.Name == "" {
		c.Session.Name = def.Session.Name
	}
	if c.Session.Namespace == "" {
		c.Session.Namespace = def.Session.Namespace
	}
	if c.Session.ConnectRelay == "" {
		c.Session.ConnectRelay = def.Session.ConnectRelay
	}
	if c.Session.HandshakeTimeout <= 0 {
		c.Session.HandshakeTimeout = def.Session.HandshakeTimeout
	}
	if c.Session.RequestTimeout <= 0 {
		c.Session.RequestTimeout = def.Session.RequestTimeout
	}
	if c.Session.QueueDepth <= 0 {
		c.Session.QueueDepth = def.Session.QueueDepth
	}
	if len(c.Delegation.Kinds) == 0 {
		c.Delegation.Kinds = def.Delegation.Kinds
	}
	if c.Delegation.ValidFor <= 0 {
		c.Delegation.ValidFor = def.Delegation.ValidFor
	}
	if c.Store.Driver == "" {
		c.Store.Driver = def.Store.Driver
	}
	if c.Events.Topic == "" {
		c.Events.Topic = def.Events.Topic
	}
	if c.Server.Listen == "" {
		c.Server.Listen = def.Server.Listen
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	if pass := os.Getenv(PassphraseEnv); pass != "" {
		c.Store.Passphrase = pass
	}
}

func (c Config) SessionConfig() domain.SessionConfig {
	return domain.SessionConfig{
		Name:                   c.Session.Name,
		ConnectRelay:           c.Session.ConnectRelay,
		Relays:                 c.Session.Relays,
		HandshakeTimeout:       c.Session.HandshakeTimeout,
		RequestTimeout:         c.Session.RequestTimeout,
		QueueDepth:             c.Session.QueueDepth,
		DelegationKinds:        c.Delegation.Kinds,
		DelegationValidFor:     c.Delegation.ValidFor,
		DropSignerOnDelegation: c.Delegation.DropSignerAfterInstall,
	}
}
