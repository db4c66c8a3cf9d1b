package sink

import (
	"context"
	"fmt"

	"github.com/siem-soar-platform/integrations/pkg/config"
	"github.com/siem-soar-platform/integrations/pkg/logger"
)

// FromConfig builds the sink selected by cfg.Type.
func FromConfig(ctx context.Context, cfg config.SinkConfig, log *logger.Logger) (EventSink, error) {
	var (
		s   EventSink
		err error
	)
	switch cfg.Type {
	case "", "none":
		return NewNopSink(), nil
	case "kafka":
		var k *KafkaSink
		k, err = NewKafkaSink(KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, log)
		s = k
	case "s3":
		var s3 *S3Sink
		s3, err = NewS3Sink(ctx, S3Config{
			Region:   cfg.S3Region,
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Endpoint: cfg.S3Endpoint,
		}, log)
		s = s3
	case "clickhouse":
		var ch *ClickHouseSink
		ch, err = NewClickHouseSink(ctx, ClickHouseConfig{
			Hosts:    cfg.ClickHouseHosts,
			Database: cfg.ClickHouseDatabase,
			Table:    cfg.ClickHouseTable,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		}, log)
		s = ch
	case "splunk-hec":
		var hec *HECSink
		hec, err = NewHECSink(HECConfig{
			URL:        cfg.HECURL,
			Token:      cfg.HECToken,
			Index:      cfg.HECIndex,
			SourceType: cfg.HECSourceType,
			Insecure:   cfg.HECInsecure,
		}, log)
		s = hec
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
