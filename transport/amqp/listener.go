// Package amqp implements the AMQP Listener (spec §4.6, §6.4):
// auto-reconnecting broker connection, queue/exchange declaration per
// config, fire-and-forget delivery to the dispatcher (no response sink).
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dispatchcore/dispatchcore/core/config"
	"github.com/dispatchcore/dispatchcore/core/dispatch"
	"github.com/dispatchcore/dispatchcore/core/logging"
	"github.com/dispatchcore/dispatchcore/core/message"
	"github.com/dispatchcore/dispatchcore/core/observability"
	"github.com/dispatchcore/dispatchcore/core/rctx"
)

// Listener consumes from one configured queue/exchange and delivers each
// message to a Dispatcher; it never writes a response (spec §3.4: AMQP
// messages are fire-and-forget).
type Listener struct {
	opts       config.RabbitOptions
	dispatcher *dispatch.Dispatcher
	log        logging.Logger
}

// New returns an AMQP Listener configured from opts. A listener must bind
// to exactly one of queue or exchange (spec §6.4); New rejects both and
// neither being set rather than letting an ambiguous config reach Run.
func New(opts config.RabbitOptions, d *dispatch.Dispatcher, log logging.Logger) (*Listener, error) {
	hasQueue := opts.Queue != ""
	hasExchange := opts.Exchange != ""
	switch {
	case hasQueue && hasExchange:
		return nil, fmt.Errorf("amqp: listener configured with both queue %q and exchange %q; exactly one is required", opts.Queue, opts.Exchange)
	case !hasQueue && !hasExchange:
		return nil, fmt.Errorf("amqp: listener configured with neither queue nor exchange; exactly one is required")
	}
	return &Listener{opts: opts, dispatcher: d, log: log}, nil
}

// Run connects and consumes until ctx is canceled, reconnecting with
// exponential backoff bounded by the configured retry delay on any
// connection failure (spec §5: "AMQP listener retries on exception with a
// configurable delay, default 10 s").
func (l *Listener) Run(ctx context.Context) error {
	retryDelay := time.Duration(l.opts.RetryDelaySeconds) * time.Second
	if retryDelay <= 0 {
		retryDelay = 10 * time.Second
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever until ctx is canceled
	bo.MaxInterval = retryDelay

	for {
		err := l.connectAndConsume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.log.Warn("amqp connection lost, reconnecting", "error", err)
		}
		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (l *Listener) connectAndConsume(ctx context.Context) error {
	conn, err := amqp.Dial(l.opts.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	queueName := l.opts.Queue
	if l.opts.Exchange != "" {
		if err := ch.ExchangeDeclare(l.opts.Exchange, l.opts.ExchangeType, l.opts.Durable, l.opts.AutoDelete, false, l.opts.Passive, nil); err != nil {
			return err
		}
		q, err := ch.QueueDeclare(queueName, l.opts.Durable, l.opts.AutoDelete, l.opts.Exclusive, l.opts.Passive, nil)
		if err != nil {
			return err
		}
		queueName = q.Name
		if err := ch.QueueBind(queueName, l.opts.RoutingKey, l.opts.Exchange, false, nil); err != nil {
			return err
		}
	} else {
		q, err := ch.QueueDeclare(queueName, l.opts.Durable, l.opts.AutoDelete, l.opts.Exclusive, l.opts.Passive, nil)
		if err != nil {
			return err
		}
		queueName = q.Name
	}

	deliveries, err := ch.Consume(queueName, "", true, l.opts.Exclusive, false, false, nil)
	if err != nil {
		return err
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case cerr := <-closed:
			if cerr != nil {
				return cerr
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			l.deliver(ctx, d)
		}
	}
}

func (l *Listener) deliver(ctx context.Context, d amqp.Delivery) {
	start := time.Now()

	cms := rctx.NewCMS()
	reqInfo := cms["request"].(map[string]any)
	reqInfo["method"] = "AMQP"
	reqInfo["routing_key"] = d.RoutingKey
	reqInfo["exchange"] = d.Exchange

	var body any
	if json.Unmarshal(d.Body, &body) == nil {
		cms["body"] = body
	}

	msg := &message.Message{
		Variant:        message.VariantAMQP,
		Payload:        d.Body,
		AMQPHost:       l.opts.URL,
		AMQPQueue:      l.opts.Queue,
		AMQPRoutingKey: d.RoutingKey,
	}

	l.dispatcher.Dispatch(ctx, msg, cms, "/amqp/"+d.RoutingKey)
	observability.RecordDispatch("amqp", string(message.VariantAMQP), "ok", time.Since(start))
}
