package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/modules/payments"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// dialFunc opens a channel with the exchange declared and returns a func
// closing the underlying connection.
type dialFunc func() (publisher, func() error, error)

// AMQP publishes payment events to a topic exchange, routed by event name.
// A channel or connection closed by the broker is re-dialed once per publish.
type AMQP struct {
	mu        sync.Mutex
	ch        publisher
	closeConn func() error
	dial      dialFunc
	exchange  string
	now       func() time.Time
}

func DialAMQP(url, exchange string) (*AMQP, error) {
	a := &AMQP{exchange: exchange, now: time.Now}
	a.dial = func() (publisher, func() error, error) { return dialExchange(url, exchange) }
	ch, closeConn, err := a.dial()
	if err != nil {
		return nil, err
	}
	a.ch, a.closeConn = ch, closeConn
	return a, nil
}

func dialExchange(url, exchange string) (publisher, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("notify: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("notify: amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("notify: declare exchange %s: %w", exchange, err)
	}
	return ch, conn.Close, nil
}

func (a *AMQP) PaymentApproved(ctx context.Context, p payments.Payment) error {
	return a.publish(ctx, NewEvent(EventApproved, p, a.now()))
}

func (a *AMQP) PaymentDeclined(ctx context.Context, p payments.Payment) error {
	return a.publish(ctx, NewEvent(EventDeclined, p, a.now()))
}

func (a *AMQP) publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.PaymentID + ":" + ev.Event,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch == nil {
		err = amqp.ErrClosed
	} else {
		err = a.ch.PublishWithContext(ctx, a.exchange, ev.Event, false, false, msg)
	}
	if errors.Is(err, amqp.ErrClosed) && a.dial != nil {
		if rerr := a.redial(); rerr != nil {
			err = errors.Join(err, rerr)
		} else {
			err = a.ch.PublishWithContext(ctx, a.exchange, ev.Event, false, false, msg)
		}
	}
	if err != nil {
		return fmt.Errorf("notify: publish %s for %s: %w", ev.Event, ev.PaymentID, err)
	}
	return nil
}

// redial must be called with mu held.
func (a *AMQP) redial() error {
	if a.closeConn != nil {
		_ = a.closeConn()
	}
	a.ch, a.closeConn = nil, nil
	ch, closeConn, err := a.dial()
	if err != nil {
		return err
	}
	a.ch, a.closeConn = ch, closeConn
	return nil
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dial = nil
	if a.closeConn == nil {
		return nil
	}
	err := a.closeConn()
	a.ch, a.closeConn = nil, nil
	return err
}
