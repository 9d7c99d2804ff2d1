package config

import (
	"fmt"

	"relay/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDelivery(cfg.Delivery); err != nil {
		errors = append(errors, err)
	}

	if err := validateDedup(cfg.Dedup); err != nil {
		errors = append(errors, err)
	}

	if err := validateHistory(cfg.History); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "postgres host is required",
		}
	}

	if cfg.Postgres.Port < 1 || cfg.Postgres.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Postgres.Port),
		}
	}

	if cfg.RunMigrations && cfg.MigrationsPath == "" {
		return &ValidationError{
			Field:   "database.migrations_path",
			Message: "migrations path is required when run_migrations is enabled",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	// Broker is optional; events arrive over HTTP when no broker is configured.
	if cfg.Type == "" {
		return nil
	}

	if cfg.Type != "kafka" {
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unsupported broker type: %s", cfg.Type),
		}
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one kafka broker is required",
		}
	}

	if cfg.Kafka.InputTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.input_topic",
			Message: "input topic is required",
		}
	}

	return nil
}

func validateDelivery(cfg DeliveryConfig) error {
	// Zero values fall back to the built-in retry policy.
	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "delivery.retry.max_attempts",
			Message: "max attempts must be at least 1",
		}
	}

	if cfg.Retry.Multiplier != 0 && cfg.Retry.Multiplier < 1 {
		return &ValidationError{
			Field:   "delivery.retry.multiplier",
			Message: "multiplier must be at least 1",
		}
	}

	return nil
}

func validateDedup(cfg DedupConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.TTLSeconds <= 0 {
		return &ValidationError{
			Field:   "dedup.ttl_seconds",
			Message: "ttl_seconds must be positive",
		}
	}

	if cfg.OnRedisError != constants.FallbackAllow && cfg.OnRedisError != constants.FallbackDeny {
		return &ValidationError{
			Field:   "dedup.on_redis_error",
			Message: fmt.Sprintf("invalid on_redis_error: %s. Allowed: allow, deny", cfg.OnRedisError),
		}
	}

	return nil
}

func validateHistory(cfg HistoryConfig) error {
	if cfg.RetentionKeep < 0 {
		return &ValidationError{
			Field:   "history.retention_keep",
			Message: "retention_keep must be non-negative",
		}
	}

	return nil
}
