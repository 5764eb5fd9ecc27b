package pov

import (
	"b3pov/pkg/mq"
	"b3pov/pkg/telemetry"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	PovQueueName     = "pov_queue"
	VerdictQueueName = "pov_verdict_queue"
)

// QueueConsumer takes PoV requests from RabbitMQ and submits them one at a
// time.
type QueueConsumer struct {
	logger        *zap.Logger
	rabbitMQ      mq.RabbitMQ
	service       *Service
	tracerFactory *telemetry.TracerFactory
	shutdowner    fx.Shutdowner

	wg sync.WaitGroup
}

type QueueConsumerParams struct {
	fx.In

	Logger        *zap.Logger
	RabbitMQ      mq.RabbitMQ `optional:"true"`
	Service       *Service
	TracerFactory *telemetry.TracerFactory `optional:"true"`
	Shutdowner    fx.Shutdowner
	Lifecycle     fx.Lifecycle
}

func StartQueueConsumer(p QueueConsumerParams) *QueueConsumer {
	if p.RabbitMQ == nil {
		return nil
	}

	c := &QueueConsumer{
		logger:        p.Logger.Named("queue"),
		rabbitMQ:      p.RabbitMQ,
		service:       p.Service,
		tracerFactory: p.TracerFactory,
		shutdowner:    p.Shutdowner,
	}

	consumeCtx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.start(consumeCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			c.wg.Wait()
			return nil
		},
	})
	return c
}

func (c *QueueConsumer) start(ctx context.Context) {
	const retryLimit = 3
	failCnt := 0

	for {
		err := c.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Warn("pov consumer failed to listen for messages", zap.Error(err))
			failCnt++
			if failCnt >= retryLimit {
				c.logger.Error("retry limit reached, shutting down", zap.Error(err))
				if err := c.shutdowner.Shutdown(); err != nil {
					c.logger.Error("failed to shut down", zap.Error(err))
				}
				return
			}
		}
		c.logger.Warn("retrying...")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(failCnt) * time.Second):
		}
	}
}

func (c *QueueConsumer) listen(ctx context.Context) error {
	channel, err := c.rabbitMQ.GetChannel()
	if err != nil {
		return fmt.Errorf("failed to get RabbitMQ channel: %w", err)
	}
	defer channel.Close()

	// one unacknowledged PoV at a time
	if err := channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	q, err := channel.QueueDeclare(
		PovQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	c.logger.Info("Waiting for messages in queue", zap.String("queue", q.Name))
	msgs, err := channel.Consume(
		q.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-msgs:
			if !ok {
				return errors.New("channel closed")
			}
			if err := c.onMessage(ctx, message); err != nil {
				return err
			}
		}
	}
}

// onMessage settles every delivery. Only a failure to ack or nack is
// returned, since the channel is unusable afterwards.
func (c *QueueConsumer) onMessage(ctx context.Context, message amqp.Delivery) error {
	c.logger.Debug("Received message", zap.Int("bytes", len(message.Body)))

	var req Request
	if err := json.Unmarshal(message.Body, &req); err != nil {
		c.logger.Error("Dropping malformed pov request", zap.Error(err))
		return nack(message, false)
	}

	tracer := c.tracerFactory.NewTracer(ctx, "pov request")
	tracer.Start()
	defer tracer.End()

	verdict, err := c.service.Submit(telemetry.WithTracer(ctx, tracer), req)
	if err != nil {
		requeue := ctx.Err() != nil // interrupted by shutdown, let another consumer take it
		c.logger.Error("Failed to process pov request",
			zap.String("request_id", req.ID),
			zap.Bool("requeue", requeue),
			zap.Error(err))
		return nack(message, requeue)
	}

	if err := message.Ack(false); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	c.logger.Debug("pov request processed",
		zap.String("request_id", req.ID),
		zap.String("verdict_id", verdict.ID))
	return nil
}

func nack(message amqp.Delivery, requeue bool) error {
	if err := message.Nack(false, requeue); err != nil {
		return fmt.Errorf("failed to nack message: %w", err)
	}
	return nil
}

// VerdictPublisher publishes every verdict to the verdict queue.
type VerdictPublisher struct {
	rabbitMQ mq.RabbitMQ
	logger   *zap.Logger
}

func NewVerdictPublisher(rabbitMQ mq.RabbitMQ, logger *zap.Logger) *VerdictPublisher {
	if rabbitMQ == nil {
		return nil
	}
	return &VerdictPublisher{rabbitMQ: rabbitMQ, logger: logger.Named("publisher")}
}

func (p *VerdictPublisher) Name() string { return "rabbitmq" }

func (p *VerdictPublisher) Record(ctx context.Context, v *Verdict) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}

	ch, err := p.rabbitMQ.GetChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(VerdictQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		"",               // exchange
		VerdictQueueName, // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    v.ID,
			Timestamp:    v.CreatedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish verdict: %w", err)
	}
	p.logger.Debug("verdict published", zap.String("verdict_id", v.ID))
	return nil
}
