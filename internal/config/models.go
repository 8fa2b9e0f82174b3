package config

import (
	"fmt"
	"time"
)

// ArtifactsConfig represents where trained models are kept
type ArtifactsConfig struct {
	Dir      string
	KeepRuns int
}

// TrainingConfig represents the training pipeline settings
type TrainingConfig struct {
	DataPath     string
	Encoding     string
	StrictLabels bool
	Workers      int
	TestSize     float64
	Seed         int64
	NgramMin     int
	NgramMax     int
	MaxFeatures  int
	Alpha        float64
}

// InferenceConfig represents the prediction settings
type InferenceConfig struct {
	MaxInputSize int
}

// ServerConfig represents the HTTP server settings
type ServerConfig struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// DynamoDBConfig represents the DynamoDB backend settings
type DynamoDBConfig struct {
	Table    string
	Region   string
	Endpoint string
}

// StoreConfig represents the user and history store settings
type StoreConfig struct {
	Type             string
	Retention        time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	BadgerPath       string
	DynamoDB         DynamoDBConfig
}

// AuthConfig represents the account and session settings
type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// GetArtifacts returns the artifacts configuration
func (c *Config) GetArtifacts() ArtifactsConfig {
	return ArtifactsConfig{
		Dir:      c.GetString("artifacts.dir"),
		KeepRuns: c.GetInt("artifacts.keep_runs"),
	}
}

// GetTraining returns the training configuration
func (c *Config) GetTraining() TrainingConfig {
	return TrainingConfig{
		DataPath:     c.GetString("training.data_path"),
		Encoding:     c.GetString("training.encoding"),
		StrictLabels: c.GetBool("training.strict_labels"),
		Workers:      c.GetInt("training.workers"),
		TestSize:     c.GetFloat64("training.test_size"),
		Seed:         c.GetInt64("training.seed"),
		NgramMin:     c.GetInt("training.ngram_min"),
		NgramMax:     c.GetInt("training.ngram_max"),
		MaxFeatures:  c.GetInt("training.max_features"),
		Alpha:        c.GetFloat64("training.alpha"),
	}
}

// GetInference returns the inference configuration
func (c *Config) GetInference() InferenceConfig {
	return InferenceConfig{
		MaxInputSize: c.GetInt("inference.max_input_size"),
	}
}

// GetServer returns the server configuration
func (c *Config) GetServer() (ServerConfig, error) {
	cfg := ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
		MaxBodyBytes:  c.GetInt64("server.max_body_bytes"),
	}
	var err error
	if cfg.ReadTimeout, err = c.duration("server.read_timeout"); err != nil {
		return ServerConfig{}, err
	}
	if cfg.WriteTimeout, err = c.duration("server.write_timeout"); err != nil {
		return ServerConfig{}, err
	}
	if cfg.ShutdownTimeout, err = c.duration("server.shutdown_timeout"); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// GetStore returns the store configuration
func (c *Config) GetStore() (StoreConfig, error) {
	cfg := StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
		BadgerPath: c.GetString("store.badger_path"),
		DynamoDB: DynamoDBConfig{
			Table:    c.GetString("store.dynamodb.table"),
			Region:   c.GetString("store.dynamodb.region"),
			Endpoint: c.GetString("store.dynamodb.endpoint"),
		},
	}
	var err error
	if cfg.Retention, err = c.duration("store.retention"); err != nil {
		return StoreConfig{}, err
	}
	if cfg.CleanupFrequency, err = c.duration("store.cleanup_frequency"); err != nil {
		return StoreConfig{}, err
	}
	return cfg, nil
}

// GetAuth returns the auth configuration
func (c *Config) GetAuth() (AuthConfig, error) {
	ttl, err := c.duration("auth.token_ttl")
	if err != nil {
		return AuthConfig{}, err
	}
	return AuthConfig{
		JWTSecret:  c.GetString("auth.jwt_secret"),
		TokenTTL:   ttl,
		BcryptCost: c.GetInt("auth.bcrypt_cost"),
	}, nil
}

func (c *Config) duration(key string) (time.Duration, error) {
	d, err := c.GetDuration(key)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
