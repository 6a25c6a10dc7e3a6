package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/evse-sim/simulator/internal/eventbus"
)

// CommandConsumer consumes Commands from the sim.commands topic and hands
// each to a Dispatcher, the out-of-process analogue of Enqueue. It is
// grounded on the gateway's internal/message.KafkaConsumer: same
// ConsumerGroupHandler shape (Setup/Cleanup/ConsumeClaim), with each
// message marked after it has been dispatched, re-targeted from "decode a CSMS-bound
// protocol command" to "decode a Core control API command".
type CommandConsumer struct {
	group      sarama.ConsumerGroup
	topic      string
	dispatcher *Dispatcher
	log        zerolog.Logger
	cancel     context.CancelFunc
}

// NewCommandConsumer dials brokers and joins groupID, consuming topic.
func NewCommandConsumer(brokers []string, groupID, topic string, dispatcher *Dispatcher, log zerolog.Logger) (*CommandConsumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRange()
	cfg.Consumer.Group.Session.Timeout = 10 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("control: failed to create Kafka consumer group: %w", err)
	}
	c := &CommandConsumer{group: group, topic: topic, dispatcher: dispatcher, log: log}
	go func() {
		for err := range group.Errors() {
			log.Error().Err(err).Msg("Kafka consumer group error")
		}
	}()
	return c, nil
}

// Start joins the consumer group and processes messages until ctx is
// cancelled or Close is called. It retries Consume on transient errors the
// same way the gateway's consumer loop did.
func (c *CommandConsumer) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go func() {
		for {
			if err := c.group.Consume(runCtx, []string{c.topic}, c); err != nil {
				c.log.Error().Err(err).Msg("Kafka consumer group consume error")
				if runCtx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}
			if runCtx.Err() != nil {
				return
			}
		}
	}()
}

// Close stops consumption and releases the consumer group.
func (c *CommandConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.group.Close()
}

func (c *CommandConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *CommandConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim decodes each message as a Command and dispatches it. A
// message that fails to decode is marked (so a poison message can't wedge
// the partition) and skipped, mirroring the gateway's consumer.
func (c *CommandConsumer) ConsumeClaim(gs sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var cmd Command
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			c.log.Warn().Err(err).Msg("failed to decode control command, skipping")
			gs.MarkMessage(msg, "")
			continue
		}
		result := c.dispatcher.Dispatch(gs.Context(), cmd)
		if !result.OK {
			c.log.Warn().Str("session_id", result.SessionID).Str("error", result.Error).Msg("control command failed")
		}
		gs.MarkMessage(msg, "")
	}
	return nil
}

// EventProducer mirrors the in-process event bus onto the sim.events.*
// Kafka topics, for the TNR recorder and any other out-of-process
// observer watching a headless run (spec §6, DOMAIN STACK). Grounded on
// the gateway's internal/message.KafkaProducer: same async-producer,
// same success/error goroutines, re-targeted to publish eventbus.Event
// values instead of domain/events.Event.
type EventProducer struct {
	producer sarama.AsyncProducer
	topic    string
	log      zerolog.Logger
}

// NewEventProducer dials brokers and prepares an async producer publishing
// to topic.
func NewEventProducer(brokers []string, topic string, log zerolog.Logger) (*EventProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("control: failed to create Kafka async producer: %w", err)
	}
	p := &EventProducer{producer: producer, topic: topic, log: log}
	go p.drainSuccesses()
	go p.drainErrors()
	return p, nil
}

// Subscribe attaches this producer to bus as a subscriber of every topic
// named in spec §4.7, publishing each Event onward to Kafka keyed by
// session id so a single session's events land on one partition.
func (p *EventProducer) Subscribe(bus *eventbus.Bus) {
	for _, topic := range []eventbus.Topic{
		eventbus.TopicSessionEvent, eventbus.TopicFrameIn, eventbus.TopicFrameOut, eventbus.TopicMetricsTick,
	} {
		ch := bus.Subscribe(topic, "kafka-event-producer")
		go p.forward(topic, ch)
	}
}

func (p *EventProducer) forward(topic eventbus.Topic, ch <-chan eventbus.Event) {
	for evt := range ch {
		data, err := json.Marshal(evt)
		if err != nil {
			p.log.Warn().Err(err).Str("topic", string(topic)).Msg("failed to marshal event for Kafka")
			continue
		}
		p.producer.Input() <- &sarama.ProducerMessage{
			Topic: fmt.Sprintf("%s.%s", p.topic, topic),
			Key:   sarama.StringEncoder(evt.SessionID),
			Value: sarama.ByteEncoder(data),
		}
	}
}

func (p *EventProducer) drainSuccesses() {
	for msg := range p.producer.Successes() {
		p.log.Debug().Str("topic", msg.Topic).Msg("event published to Kafka")
	}
}

func (p *EventProducer) drainErrors() {
	for err := range p.producer.Errors() {
		p.log.Error().Err(err).Str("topic", err.Msg.Topic).Msg("failed to publish event to Kafka")
	}
}

// Close flushes and closes the underlying producer.
func (p *EventProducer) Close() error {
	return p.producer.Close()
}
