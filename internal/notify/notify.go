// Package notify publishes key events to a Redis channel so other services
// (a porch camera, a phone bridge) can react to the doorbell.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/protocol"
)

// Event is the JSON payload published for every key command.
type Event struct {
	Link    string    `json:"link"`
	Channel int       `json:"channel"`
	Action  string    `json:"action"`
	At      time.Time `json:"at"`
}

// PublishFunc sends one message to a channel.
type PublishFunc func(ctx context.Context, channel string, message string) error

const (
	queueSize      = 64
	publishTimeout = 2 * time.Second
)

// Publisher queues events and publishes them from its own goroutine, so the
// link reader never waits on the network. Events are dropped when the queue
// is full.
type Publisher struct {
	channel string
	publish PublishFunc
	closeFn func() error
	log     *slog.Logger
	now     func() time.Time

	events    chan Event
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Options configures a Redis publisher.
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedis connects to Redis and checks the connection with PING.
func NewRedis(ctx context.Context, opts Options, log *slog.Logger) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %v", opts.Addr)
	}

	publish := func(ctx context.Context, channel, message string) error {
		return rdb.Publish(ctx, channel, message).Err()
	}
	p := New(opts.Channel, publish, log)
	p.closeFn = rdb.Close
	p.log.Info("notify: connected", "addr", opts.Addr, "db", opts.DB, "channel", opts.Channel)
	return p, nil
}

// New returns a publisher that sends through publish.
func New(channel string, publish PublishFunc, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		channel: channel,
		publish: publish,
		log:     log,
		now:     time.Now,
		events:  make(chan Event, queueSize),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Observe queues an event for cmd.
func (p *Publisher) Observe(_ context.Context, link string, cmd protocol.Command) {
	ev := Event{
		Link:    link,
		Channel: cmd.Channel,
		Action:  cmd.Action.String(),
		At:      p.now(),
	}
	select {
	case p.events <- ev:
	default:
		p.log.Warn("notify: queue full, event dropped", "channel", ev.Channel, "action", ev.Action)
	}
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for ev := range p.events {
		if err := p.send(ev); err != nil {
			p.log.Warn("notify: publish failed", "err", err)
		}
	}
}

func (p *Publisher) send(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrapf(err, "marshal %+v", ev)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.publish(ctx, p.channel, string(b)); err != nil {
		return errors.Wrapf(err, "publish to %v", p.channel)
	}
	p.log.Debug("notify: published", "channel", p.channel, "event", string(b))
	return nil
}

// Close publishes what is queued and closes the connection. Observe must not
// be called after Close.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		close(p.events)
		p.wg.Wait()
		if p.closeFn != nil {
			if err := p.closeFn(); err != nil {
				p.closeErr = errors.Wrapf(err, "close redis")
			}
		}
	})
	return p.closeErr
}
