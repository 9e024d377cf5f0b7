// Package appconfig handles loading and accessing application configuration
// using Viper, supporting environment variables and config files.
package appconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for a Gateway or System Server process.
// Tags are used by Viper to map config file keys and environment variables.
type Config struct {
	// RegistryPath is the path to the YAML system catalog (§6).
	RegistryPath string `mapstructure:"registry_path"`

	// MinimumListenTime is the minimum summed PLAY duration, in seconds, a
	// side must accumulate before a vote is accepted.
	MinimumListenTime float64 `mapstructure:"minimum_listen_time"`

	// GatewayURL is the externally-reachable base URL of the Gateway.
	GatewayURL string `mapstructure:"gateway_url"`

	// SystemsBaseURL is the base URL System Servers are reachable under,
	// used to derive a per-SystemKey endpoint when the registry does not
	// declare one explicitly.
	SystemsBaseURL string `mapstructure:"systems_base_url"`

	// Flakiness injects a transient error into /generate_battle with this
	// probability. Test mode only; defaults to 0.
	Flakiness float64 `mapstructure:"flakiness"`

	Gateway      GatewayConfig      `mapstructure:"gateway"`
	SystemServer SystemServerConfig `mapstructure:"system_server"`
	BlobStore    BlobStoreConfig    `mapstructure:"blob_store"`
	DocStore     DocStoreConfig     `mapstructure:"doc_store"`

	Chat struct {
		OpenAI struct {
			APIKey  string `mapstructure:"api_key"`
			BaseURL string `mapstructure:"base_url"`
			Model   string `mapstructure:"model"`
		} `mapstructure:"openai"`
		Anthropic struct {
			APIKey  string `mapstructure:"api_key"`
			BaseURL string `mapstructure:"base_url"`
			Version string `mapstructure:"version"`
			Model   string `mapstructure:"model"`
		} `mapstructure:"anthropic"`
		Ollama struct {
			BaseURL string `mapstructure:"base_url"`
			Model   string `mapstructure:"model"`
		} `mapstructure:"ollama"`
		Bedrock struct {
			Region  string `mapstructure:"region"`
			ModelID string `mapstructure:"model_id"`
		} `mapstructure:"bedrock"`

		// Provider selects which of the above backs the Prompt Pipeline.
		Provider string `mapstructure:"provider"`
	} `mapstructure:"chat"`
}

// GatewayConfig configures the orchestrator (C6).
type GatewayConfig struct {
	ListenAddr        string  `mapstructure:"listen_addr"`
	GenerateTimeoutS   float64 `mapstructure:"generate_timeout_s"`
}

// SystemServerConfig configures the batching core (C5).
type SystemServerConfig struct {
	ListenAddr       string  `mapstructure:"listen_addr"`
	MaxBatchSize     int     `mapstructure:"max_batch_size"`
	MaxDelaySeconds  float64 `mapstructure:"max_delay_seconds"`
	GPUMemGBPerItem  float64 `mapstructure:"gpu_mem_gb_per_item"`
	GPUTotalGB       float64 `mapstructure:"gpu_total_gb"`
	QueueCap         int     `mapstructure:"queue_cap"`
}

// BlobStoreConfig selects and configures a BlobStore backend (C7).
type BlobStoreConfig struct {
	Backend string `mapstructure:"backend"` // "memory" | "s3"
	Bucket  string `mapstructure:"bucket"`
	Region  string `mapstructure:"region"`
}

// DocStoreConfig selects and configures a DocStore backend (C7).
type DocStoreConfig struct {
	Backend          string `mapstructure:"backend"` // "memory" | "postgres"
	ConnectionString string `mapstructure:"connection_string"`
}

// Cfg is the process-wide configuration, populated by LoadConfig.
var Cfg Config

// bindUnprefixed binds a viper key to a literal (unprefixed) environment
// variable name, ignoring the bind error: BindEnv only fails on malformed
// input, never on a missing variable.
func bindUnprefixed(v *viper.Viper, key, envVar string) {
	_ = v.BindEnv(key, envVar)
}

// LoadConfig reads configuration from file and environment variables into
// Cfg, applying domain defaults first.
func LoadConfig(configPaths ...string) error {
	v := viper.New()

	v.SetDefault("minimum_listen_time", 5.0)
	v.SetDefault("flakiness", 0.0)
	v.SetDefault("gateway.listen_addr", ":8080")
	v.SetDefault("gateway.generate_timeout_s", 180.0)
	v.SetDefault("system_server.listen_addr", ":9000")
	v.SetDefault("system_server.max_batch_size", 8)
	v.SetDefault("system_server.max_delay_seconds", 2.0)
	v.SetDefault("system_server.gpu_mem_gb_per_item", 1.0)
	v.SetDefault("system_server.gpu_total_gb", 24.0)
	v.SetDefault("system_server.queue_cap", 64)
	v.SetDefault("blob_store.backend", "memory")
	v.SetDefault("doc_store.backend", "memory")
	v.SetDefault("chat.provider", "anthropic")
	v.SetDefault("chat.anthropic.model", "claude-3-haiku-20240307")
	v.SetDefault("chat.anthropic.version", "2023-06-01")
	v.SetDefault("chat.openai.model", "gpt-4o-mini")
	v.SetDefault("chat.ollama.base_url", "http://localhost:11434")
	v.SetDefault("chat.ollama.model", "llama3")
	v.SetDefault("chat.bedrock.region", "us-east-1")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/musicarena/")
	v.AddConfigPath("$HOME/.musicarena")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("config file not found, using defaults and environment variables")
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("MUSICARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind these four environment variables under their unprefixed names
	// as well. When both forms are set, viper's AutomaticEnv lookup of the
	// MUSICARENA_-prefixed name is consulted first and wins.
	bindUnprefixed(v, "minimum_listen_time", "MINIMUM_LISTEN_TIME")
	bindUnprefixed(v, "gateway_url", "GATEWAY_URL")
	bindUnprefixed(v, "systems_base_url", "SYSTEMS_BASE_URL")
	bindUnprefixed(v, "flakiness", "FLAKINESS")

	if err := v.Unmarshal(&Cfg); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return nil
}
