package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/siem-soar-platform/integrations/pkg/logger"
)

// KafkaConfig holds Kafka sink configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink produces events to a Kafka topic, one record per event keyed
// by vendor_product.
type KafkaSink struct {
	cfg    KafkaConfig
	client *kgo.Client
	logger *logger.Logger
}

// NewKafkaSink creates a Kafka producer.
func NewKafkaSink(cfg KafkaConfig, log *logger.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchMaxBytes(16*1024*1024),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaSink{
		cfg:    cfg,
		client: client,
		logger: log.With("component", "kafka-sink", "topic", cfg.Topic),
	}, nil
}

func (k *KafkaSink) Name() string { return "kafka" }

// Send produces the batch synchronously.
func (k *KafkaSink) Send(ctx context.Context, vendor, product string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	key := []byte(vendor + "_" + product)
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range Decorate(vendor, product, events, time.Now()) {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		records = append(records, &kgo.Record{Key: key, Value: data})
	}

	if err := k.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce events: %w", err)
	}

	k.logger.Debug("events produced", "vendor", vendor, "product", product, "count", len(records))
	return nil
}

// Close flushes pending records and closes the client.
func (k *KafkaSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := k.client.Flush(ctx)
	k.client.Close()
	return err
}
