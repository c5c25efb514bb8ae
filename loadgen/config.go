package loadgen

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rozbb/blindsig-benches/blindsig"
)

// Config describes one benchmark run.
type Config struct {
	// ServerURL is the signer's base URL. Empty means the bench command
	// self-hosts a signer.
	ServerURL string `yaml:"server_url"`

	// Levels are the concurrency levels to sweep, in order.
	Levels []int `yaml:"levels"`

	// RequestsPerLevel is the shared round-trip quota per level, drained by
	// all workers of that level together.
	RequestsPerLevel int `yaml:"requests_per_level"`

	// Message is the payload signed in every round-trip.
	Message string `yaml:"message"`

	// Scheme names the blind signature scheme the signer is expected to run.
	Scheme string `yaml:"scheme"`

	// Backoff policy for transient transport failures.
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	MaxAttempts int           `yaml:"max_attempts"`
	JitterFrac  float64       `yaml:"jitter_frac"`

	// IncludeBackoffWait counts backoff sleeps toward reported latency.
	// Off by default: the benchmark measures steady-state server cost, not
	// listen-backlog recovery.
	IncludeBackoffWait bool `yaml:"include_backoff_wait"`

	// InterarrivalMean staggers worker start-up with exponentially
	// distributed pauses, modeling Poisson arrivals. Zero starts all
	// workers at once.
	InterarrivalMean time.Duration `yaml:"interarrival_mean"`

	// RequestTimeout bounds each individual HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig mirrors the sweep the plots are generated from.
func DefaultConfig() *Config {
	return &Config{
		Levels:           []int{1, 2, 4, 8, 16},
		RequestsPerLevel: 100,
		Message:          "Hello world",
		Scheme:           blindsig.SchemeSchnorr,
		BackoffBase:      75 * time.Millisecond,
		BackoffMax:       2 * time.Second,
		MaxAttempts:      5,
		JitterFrac:       0.2,
		RequestTimeout:   10 * time.Second,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the parts that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if len(c.Levels) == 0 {
		return errors.New("config: no concurrency levels")
	}
	for _, level := range c.Levels {
		if level < 1 {
			return fmt.Errorf("config: invalid concurrency level %d", level)
		}
	}
	if c.RequestsPerLevel < 1 {
		return errors.New("config: requests_per_level must be positive")
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return errors.New("config: backoff_base must be positive and not exceed backoff_max")
	}
	if c.MaxAttempts < 1 {
		return errors.New("config: max_attempts must be positive")
	}
	return nil
}

func (c *Config) backoff() *Backoff {
	return &Backoff{
		Base:        c.BackoffBase,
		MaxWait:     c.BackoffMax,
		MaxAttempts: c.MaxAttempts,
		JitterFrac:  c.JitterFrac,
	}
}
