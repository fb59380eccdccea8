package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"userprofile/internal/config"
	"userprofile/sink"
)

func withMock(t *testing.T, setup func(*mocks.SyncProducer)) NewProducerFunc {
	return func(_ []string, sc *sarama.Config) (sarama.SyncProducer, error) {
		p := mocks.NewSyncProducer(t, sc)
		setup(p)
		return p, nil
	}
}

func TestProducerConfig_IdempotentDefaults(t *testing.T) {
	cfg := config.Default()
	sc, err := ProducerConfig(cfg)
	require.NoError(t, err)
	require.True(t, sc.Producer.Idempotent)
	require.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	require.Equal(t, 1, sc.Net.MaxOpenRequests)
	require.Equal(t, cfg.Performance.ProducerBatchSize, sc.Producer.Flush.Messages)
	require.Equal(t, "userprofile-service", sc.ClientID)
}

func TestProducerConfig_Overrides(t *testing.T) {
	cfg := config.Default()
	cfg.Performance.EnableIdempotence = false
	cfg.Kafka.Producer = map[string]string{
		"acks":              "1",
		"retries":           "7",
		"linger.ms":         "20",
		"compression.type":  "zstd",
		"message.max.bytes": "2048",
	}
	sc, err := ProducerConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, sarama.WaitForLocal, sc.Producer.RequiredAcks)
	require.Equal(t, 7, sc.Producer.Retry.Max)
	require.Equal(t, sarama.CompressionZSTD, sc.Producer.Compression)
	require.Equal(t, 2048, sc.Producer.MaxMessageBytes)

	cfg.Kafka.Producer = map[string]string{"transactional.id": "x"}
	_, err = ProducerConfig(cfg)
	require.ErrorContains(t, err, "unsupported key")

	// idempotence needs acks=all
	cfg.Performance.EnableIdempotence = true
	cfg.Kafka.Producer = map[string]string{"acks": "1"}
	_, err = ProducerConfig(cfg)
	require.Error(t, err)
}

func TestPublish_SendsMessage(t *testing.T) {
	d := New(withMock(t, func(p *mocks.SyncProducer) {
		p.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
			if m.Topic != "audit-events" {
				return errors.New("wrong topic " + m.Topic)
			}
			v, _ := m.Value.Encode()
			if string(v) != `{"ok":true}` {
				return errors.New("wrong value")
			}
			if len(m.Headers) != 1 || string(m.Headers[0].Key) != "content-type" {
				return errors.New("headers not forwarded")
			}
			return nil
		})
	}))
	require.NoError(t, d.Configure(config.Default()))
	defer d.Close()

	err := d.Publish(context.Background(), sink.Message{
		Topic:   "audit-events",
		Key:     []byte("u-1"),
		Value:   []byte(`{"ok":true}`),
		Headers: map[string]string{"content-type": "application/json"},
	})
	require.NoError(t, err)
}

func TestPublish_DeliveryFailure(t *testing.T) {
	d := New(withMock(t, func(p *mocks.SyncProducer) {
		p.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	}))
	require.NoError(t, d.Configure(config.Default()))
	defer d.Close()

	err := d.Publish(context.Background(), sink.Message{Topic: "audit-events", Value: []byte("x")})
	require.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
}

func TestPublish_BeforeConfigure(t *testing.T) {
	d := New(nil)
	require.ErrorContains(t, d.Publish(context.Background(), sink.Message{Topic: "t"}), "before Configure")
	require.NoError(t, d.Close())
}

func TestRegistry(t *testing.T) {
	a, err := sink.NewAdapter("kafka")
	require.NoError(t, err)
	require.NotNil(t, a)
	_, err = sink.NewAdapter("rabbitmq")
	require.Error(t, err)
}
