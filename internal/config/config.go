package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Redis Redis `yaml:"redis"`
	NATS  NATS  `yaml:"nats"`

	Tasks     Tasks     `yaml:"tasks"`
	PubSub    PubSub    `yaml:"pubsub"`
	Scheduler Scheduler `yaml:"scheduler"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type NATS struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	MaxReconnects int    `yaml:"max_reconnects"`
}

type Tasks struct {
	// WorkerURL is the fixed /process-task endpoint the delivery transport
	// invokes.
	WorkerURL string `yaml:"worker_url"`
	QueueName string `yaml:"queue_name"`

	MaxScheduleDelay time.Duration `yaml:"max_schedule_delay"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxAttempts      int           `yaml:"max_attempts"`

	ListLimit   int `yaml:"list_limit"`
	StreamLimit int `yaml:"stream_limit"`
}

type PubSub struct {
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Durable       string `yaml:"durable"`
	PoolSize      int    `yaml:"pool_size"`

	ProcessingDelay time.Duration `yaml:"processing_delay"`

	ListLimit int `yaml:"list_limit"`
}

type Scheduler struct {
	Spec      string `yaml:"spec"`
	ListLimit int    `yaml:"list_limit"`
}

func MustLoad(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}

	if cfg.Addr == "" {
		log.Fatalf("config: addr is empty")
	}
	if cfg.Tasks.WorkerURL == "" {
		log.Fatalf("config: tasks.worker_url is empty")
	}
	if cfg.PubSub.SubjectPrefix == "" {
		log.Fatalf("config: pubsub.subject_prefix is empty")
	}
	if cfg.Tasks.MaxScheduleDelay <= 0 {
		log.Fatalf("config: tasks.max_schedule_delay must be positive, got %s", cfg.Tasks.MaxScheduleDelay)
	}

	applyDefaults(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Tasks.QueueName == "" {
		cfg.Tasks.QueueName = "default"
	}
	if cfg.Tasks.PollInterval <= 0 {
		cfg.Tasks.PollInterval = 250 * time.Millisecond
	}
	if cfg.Tasks.MaxAttempts <= 0 {
		cfg.Tasks.MaxAttempts = 5
	}
	if cfg.Tasks.ListLimit <= 0 {
		cfg.Tasks.ListLimit = 50
	}
	if cfg.Tasks.StreamLimit <= 0 {
		cfg.Tasks.StreamLimit = 20
	}
	if cfg.PubSub.Stream == "" {
		cfg.PubSub.Stream = "TASKLANE_PUBSUB"
	}
	if cfg.PubSub.Durable == "" {
		cfg.PubSub.Durable = "tasklane-processor"
	}
	if cfg.PubSub.PoolSize <= 0 {
		cfg.PubSub.PoolSize = 4
	}
	if cfg.PubSub.ProcessingDelay <= 0 {
		cfg.PubSub.ProcessingDelay = 5 * time.Second
	}
	if cfg.PubSub.ListLimit <= 0 {
		cfg.PubSub.ListLimit = 10
	}
	if cfg.Scheduler.Spec == "" {
		cfg.Scheduler.Spec = "0 0 15 * *"
	}
	if cfg.Scheduler.ListLimit <= 0 {
		cfg.Scheduler.ListLimit = 20
	}
}
