package config

import (
	"fmt"

	"github.com/IBM/sarama"
)

// SaramaBase returns the client settings shared by the consumer group and
// the producer: client id, protocol version, TLS and SASL.
func (k Kafka) SaramaBase() (*sarama.Config, error) {
	sc := sarama.NewConfig()
	if k.Version != "" {
		ver, err := sarama.ParseKafkaVersion(k.Version)
		if err != nil {
			return nil, fmt.Errorf("kafka version: %w", err)
		}
		sc.Version = ver
	}
	if k.ClientID != "" {
		sc.ClientID = k.ClientID
	}
	if k.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if k.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = k.SASLUser, k.SASLPass
	}
	return sc, nil
}
