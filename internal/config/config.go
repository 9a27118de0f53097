// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// RateLimitClass is one named admission window (operation class).
type RateLimitClass struct {
	Window time.Duration
	Max    int
}

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	JWTIssuer      string `mapstructure:"JWT_ISSUER"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	// Generative provider settings. The credential is required for every
	// generation operation; its absence fails those operations closed.
	ProviderAPIKey     string        `mapstructure:"PROVIDER_API_KEY"`
	ProviderBaseURL    string        `mapstructure:"PROVIDER_BASE_URL"`
	ProviderTimeout    time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	ChatModel          string        `mapstructure:"CHAT_MODEL"`
	ImageModel         string        `mapstructure:"IMAGE_MODEL"`
	SpeechModel        string        `mapstructure:"SPEECH_MODEL"`
	TranscriptionModel string        `mapstructure:"TRANSCRIPTION_MODEL"`
	MaxAudioBytes      int64         `mapstructure:"MAX_AUDIO_BYTES"`

	// Per-operation-class admission limits, overridable at startup.
	GeneralLimit  RateLimitClass `mapstructure:"-"`
	StoryLimit    RateLimitClass `mapstructure:"-"`
	ImageLimit    RateLimitClass `mapstructure:"-"`
	AnalysisLimit RateLimitClass `mapstructure:"-"`
	SpeechLimit   RateLimitClass `mapstructure:"-"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	SamplerRatio    float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Println("Config file not found; using environment variables and defaults")
	}

	viper.SetDefault("PORT", "8370")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("JWT_ISSUER", "reverie-identity")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "reverie")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")

	viper.SetDefault("PROVIDER_BASE_URL", "https://api.openai.com/v1")
	viper.SetDefault("PROVIDER_TIMEOUT", "60s")
	viper.SetDefault("CHAT_MODEL", "gpt-4o-mini")
	viper.SetDefault("IMAGE_MODEL", "dall-e-3")
	viper.SetDefault("SPEECH_MODEL", "tts-1")
	viper.SetDefault("TRANSCRIPTION_MODEL", "whisper-1")
	viper.SetDefault("MAX_AUDIO_BYTES", 25*1024*1024)

	viper.SetDefault("RATE_GENERAL_WINDOW", "15m")
	viper.SetDefault("RATE_GENERAL_MAX", 100)
	viper.SetDefault("RATE_STORY_WINDOW", "1m")
	viper.SetDefault("RATE_STORY_MAX", 5)
	viper.SetDefault("RATE_IMAGES_WINDOW", "1m")
	viper.SetDefault("RATE_IMAGES_MAX", 3)
	viper.SetDefault("RATE_ANALYSIS_WINDOW", "1m")
	viper.SetDefault("RATE_ANALYSIS_MAX", 5)
	viper.SetDefault("RATE_SPEECH_WINDOW", "1m")
	viper.SetDefault("RATE_SPEECH_MAX", 10)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.GeneralLimit = RateLimitClass{Window: viper.GetDuration("RATE_GENERAL_WINDOW"), Max: viper.GetInt("RATE_GENERAL_MAX")}
	config.StoryLimit = RateLimitClass{Window: viper.GetDuration("RATE_STORY_WINDOW"), Max: viper.GetInt("RATE_STORY_MAX")}
	config.ImageLimit = RateLimitClass{Window: viper.GetDuration("RATE_IMAGES_WINDOW"), Max: viper.GetInt("RATE_IMAGES_MAX")}
	config.AnalysisLimit = RateLimitClass{Window: viper.GetDuration("RATE_ANALYSIS_WINDOW"), Max: viper.GetInt("RATE_ANALYSIS_MAX")}
	config.SpeechLimit = RateLimitClass{Window: viper.GetDuration("RATE_SPEECH_WINDOW"), Max: viper.GetInt("RATE_SPEECH_MAX")}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.ProviderBaseURL == "" {
		return errors.New("PROVIDER_BASE_URL is required")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.ProviderAPIKey == "" {
			return errors.New("PROVIDER_API_KEY is required in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
	} else if c.ProviderAPIKey == "" {
		log.Println("WARNING: PROVIDER_API_KEY is not set; generation endpoints will fail closed")
	}

	for _, rl := range []RateLimitClass{c.GeneralLimit, c.StoryLimit, c.ImageLimit, c.AnalysisLimit, c.SpeechLimit} {
		if rl.Window <= 0 || rl.Max <= 0 {
			return errors.New("rate limit windows and maximums must be positive")
		}
	}

	return nil
}
