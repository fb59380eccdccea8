package config

import (
	"errors"
	"fmt"
	"strings"

	"userprofile/internal/logging"
)

var (
	errEmptyValue = errors.New("value must not be empty")
	errEmptyKey   = errors.New("key must not be empty")
)

func (c *ServiceConfig) SetServiceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("service name: %w", errEmptyValue)
	}
	warnUnchanged("service.name", c.Service.Name, name)
	c.Service.Name = name
	return nil
}

func (c *ServiceConfig) SetServiceVersion(version string) error {
	if strings.TrimSpace(version) == "" {
		return fmt.Errorf("service version: %w", errEmptyValue)
	}
	warnUnchanged("service.version", c.Service.Version, version)
	c.Service.Version = version
	return nil
}

// SetServicePort sets the gRPC listen port.
func (c *ServiceConfig) SetServicePort(port int) error {
	if !validPort(port) {
		return fmt.Errorf("service port %d out of range 1..65535", port)
	}
	warnUnchanged("service.grpc_port", c.Service.GRPCPort, port)
	c.Service.GRPCPort = port
	return nil
}

func (c *ServiceConfig) SetLogLevel(level string) error {
	if _, err := logging.ParseLevel(level); err != nil {
		return err
	}
	warnUnchanged("service.log_level", c.Service.LogLevel, level)
	c.Service.LogLevel = level
	return nil
}

func (c *ServiceConfig) SetKafkaProducerConfig(key, value string) error {
	return setOverride(&c.Kafka.Producer, "kafka.producer", key, value)
}

func (c *ServiceConfig) SetKafkaConsumerConfig(key, value string) error {
	return setOverride(&c.Kafka.Consumer, "kafka.consumer", key, value)
}

func (c ServiceConfig) KafkaProducerConfig(key string) (string, bool) {
	v, ok := c.Kafka.Producer[key]
	return v, ok
}

func (c ServiceConfig) KafkaConsumerConfig(key string) (string, bool) {
	v, ok := c.Kafka.Consumer[key]
	return v, ok
}

func setOverride(m *map[string]string, section, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%s: %w", section, errEmptyKey)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s[%s]: %w", section, key, errEmptyValue)
	}
	if *m == nil {
		*m = make(map[string]string)
	}
	if prev, ok := (*m)[key]; ok {
		warnUnchanged(section+"."+key, prev, value)
	}
	(*m)[key] = value
	return nil
}

func warnUnchanged[T comparable](key string, old, next T) {
	if old == next {
		logging.L().Warn("config value unchanged", "key", key, "value", next)
	}
}

// Redacted returns a copy safe to print.
func (c ServiceConfig) Redacted() ServiceConfig {
	if c.Kafka.SASLPass != "" {
		c.Kafka.SASLPass = "***"
	}
	return c
}
