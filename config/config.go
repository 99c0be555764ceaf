package config

import "github.com/caarlos0/env"

// Config is the process configuration, parsed once at startup and injected
// into every service.
type Config struct {
	Port         string `env:"PORT"          envDefault:"8080"`
	AWSRegion    string `env:"AWS_REGION"    envDefault:"us-east-1"`
	RedisAddr    string `env:"REDIS_ADDR"    envDefault:"127.0.0.1:6379"`
	EventChannel string `env:"EVENT_CHANNEL" envDefault:"party.events"`

	StoreTimeoutMs  int `env:"STORE_TIMEOUT_MS"  envDefault:"2000" envDocs:"bounded timeout applied to every store call"`
	PartyTTLSecond  int `env:"PARTY_TTL_SECOND"  envDefault:"7200" envDocs:"expiry window shared by every record of a party unit"`
	InviteTTLSecond int `env:"INVITE_TTL_SECOND" envDefault:"300"  envDocs:"logical lifetime of a party invite"`
	MaxPartySize    int `env:"MAX_PARTY_SIZE"    envDefault:"5"`

	QueueTimeoutMs     int64 `env:"QUEUE_TIMEOUT_MS"      envDefault:"300000" envDocs:"maximum wait in the matchmaking pool"`
	InitialEloRange    int   `env:"INITIAL_ELO_RANGE"     envDefault:"100"`
	EloRangeStep       int   `env:"ELO_RANGE_STEP"        envDefault:"50"`
	EloRangeIntervalMs int64 `env:"ELO_RANGE_INTERVAL_MS" envDefault:"15000"`
	MaxEloRange        int   `env:"MAX_ELO_RANGE"         envDefault:"400"`
	TierTolerance      int   `env:"TIER_TOLERANCE"        envDefault:"2" envDocs:"maximum allowed average skill tier difference between matched teams"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
