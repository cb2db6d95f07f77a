package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Shopify/sarama"
	"github.com/rs/zerolog/log"

	"github.com/scottthesecond/syncframe/pkg/record"
)

// kafkaEnvelope is the wire shape a KafkaAdapter round-trips: an upsert
// carries Fields, a tombstone (Deleted=true) carries none. This mirrors
// events.RecordEvent's action-tagged shape from the teacher's own wire
// format, simplified to what the core's ChangeSet needs.
type kafkaEnvelope struct {
	ID      string         `json:"id"`
	Deleted bool           `json:"deleted,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// KafkaAdapter exercises a Kafka topic as one side of a sync job: pushes
// produce one message per upsert/delete, pulls consume from a saved
// partition/offset cursor. This only makes sense for a single-partition
// topic — spec's adapter contract assumes one linear cursor per side, and
// Kafka's natural unit of ordering is a partition, not a topic. Producer
// setup is grounded on pkg/estuary/kafka.go's newDataCollector.
type KafkaAdapter struct {
	brokers   []string
	topic     string
	partition int32

	producer sarama.SyncProducer
	consumer sarama.Consumer
}

// NewKafkaAdapter dials brokers and opens both a sync producer (for
// ApplyChanges) and a consumer (for GetUpdates) against topic/partition.
func NewKafkaAdapter(brokers []string, topic string, partition int32) (*KafkaAdapter, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 10
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("adapter: new kafka producer: %w", err)
	}

	consumer, err := sarama.NewConsumer(brokers, cfg)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("adapter: new kafka consumer: %w", err)
	}

	log.Info().Strs("brokers", brokers).Str("topic", topic).Int32("partition", partition).
		Msg("kafka adapter connected")

	return &KafkaAdapter{brokers: brokers, topic: topic, partition: partition, producer: producer, consumer: consumer}, nil
}

// Close releases the producer and consumer.
func (a *KafkaAdapter) Close() error {
	perr := a.producer.Close()
	cerr := a.consumer.Close()
	if perr != nil {
		return perr
	}
	return cerr
}

func (a *KafkaAdapter) GetUpdates(ctx context.Context, cursor record.Cursor) (record.ChangeSet, record.Cursor, error) {
	offset := sarama.OffsetOldest
	if cursor.Valid {
		n, err := strconv.ParseInt(cursor.Value, 10, 64)
		if err != nil {
			return record.ChangeSet{}, cursor, fmt.Errorf("adapter: bad kafka cursor %q: %w", cursor.Value, err)
		}
		offset = n
	}

	pc, err := a.consumer.ConsumePartition(a.topic, a.partition, offset)
	if err != nil {
		return record.ChangeSet{}, cursor, fmt.Errorf("adapter: consume partition: %w", err)
	}
	defer pc.Close()

	hwm := pc.HighWaterMarkOffset()
	nextOffset := offset

	var cs record.ChangeSet
	for nextOffset < hwm {
		select {
		case msg := <-pc.Messages():
			var env kafkaEnvelope
			if err := json.Unmarshal(msg.Value, &env); err != nil {
				return record.ChangeSet{}, cursor, fmt.Errorf("adapter: decode message: %w", err)
			}
			if env.Deleted {
				cs.Deletes = append(cs.Deletes, env.ID)
			} else {
				cs.Upserts = append(cs.Upserts, record.Record{ID: env.ID, Fields: env.Fields})
			}
			nextOffset = msg.Offset + 1
		case err := <-pc.Errors():
			return record.ChangeSet{}, cursor, fmt.Errorf("adapter: partition consumer: %w", err)
		case <-ctx.Done():
			return record.ChangeSet{}, cursor, ctx.Err()
		case <-time.After(5 * time.Second):
			// No more messages arrived before the high water mark we
			// observed at the start of this call; stop here rather than
			// block indefinitely for a producer that may never write.
			nextOffset = hwm
		}
	}

	return cs, record.NewCursor(strconv.FormatInt(nextOffset, 10)), nil
}

func (a *KafkaAdapter) ApplyChanges(ctx context.Context, changes record.ChangeSet) error {
	for _, rec := range changes.Upserts {
		if err := a.produce(kafkaEnvelope{ID: rec.ID, Fields: rec.Fields}); err != nil {
			return err
		}
	}
	for _, id := range changes.Deletes {
		if err := a.produce(kafkaEnvelope{ID: id, Deleted: true}); err != nil {
			return err
		}
	}
	return nil
}

func (a *KafkaAdapter) produce(env kafkaEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("adapter: marshal envelope: %w", err)
	}
	_, _, err = a.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     a.topic,
		Partition: a.partition,
		Value:     sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("adapter: send message: %w", err)
	}
	return nil
}

func (a *KafkaAdapter) SerializeCursor(cursor record.Cursor) string {
	if !cursor.Valid {
		return ""
	}
	return cursor.Value
}
