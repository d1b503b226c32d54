// Package messaging publishes JSON messages to an AMQP topic exchange.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"learnhub_backend/pkg/logger"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var ErrPublisherClosed = errors.New("messaging: publisher closed")

// Publisher 单连接单通道；amqp.Channel 不支持并发发布，用互斥锁串行化
type Publisher struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

func NewPublisher(amqpURL, exchange string) (*Publisher, error) {
	p := &Publisher{url: amqpURL, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	err = ch.ExchangeDeclare(
		p.exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn = conn
	p.channel = ch
	return nil
}

// Publish 以 routingKey 发布 JSON 消息；通道失效时重连一次
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.channel == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}

	err = p.channel.Publish(p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	logger.Log.Warn("AMQP publish failed, reconnecting", zap.String("routingKey", routingKey), zap.Error(err))
	p.closeLocked()
	if cerr := p.connect(); cerr != nil {
		return cerr
	}
	return p.channel.Publish(p.exchange, routingKey, false, false, msg)
}

func (p *Publisher) closeLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeLocked()
}
