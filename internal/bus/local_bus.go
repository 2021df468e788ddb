package bus

import (
	"context"
	"errors"
	"sync"

	"orchard/internal/contracts"
	"orchard/internal/sharding"

	"go.uber.org/zap"
)

// ErrBusClosed indicates a publish against a closed local bus.
var ErrBusClosed = errors.New("bus closed")

type delivery struct {
	stream string
	env    contracts.Envelope
}

// LocalBus is an in-process bus used for tests and single-node runs. It
// shards deliveries by correlation id; each shard runs one worker, so
// messages for a given saga are handled in order while unrelated sagas
// proceed in parallel.
type LocalBus struct {
	shards []chan delivery
	logger *zap.Logger

	mu        sync.RWMutex
	eventSubs []Handler
	cmdSubs   map[string][]Handler
	closed    bool

	wg sync.WaitGroup
}

// NewLocalBus constructs a local bus with the given shard count and
// per-shard buffer.
func NewLocalBus(shardCount, buffer int, logger *zap.Logger) *LocalBus {
	if shardCount < 1 {
		shardCount = 1
	}
	if buffer < 1 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &LocalBus{
		shards:  make([]chan delivery, shardCount),
		logger:  logger,
		cmdSubs: make(map[string][]Handler),
	}
	for i := range b.shards {
		b.shards[i] = make(chan delivery, buffer)
		b.wg.Add(1)
		go b.run(b.shards[i])
	}
	return b
}

func (b *LocalBus) run(ch chan delivery) {
	defer b.wg.Done()
	for d := range ch {
		for _, h := range b.handlersFor(d.stream) {
			if err := h(context.Background(), d.env); err != nil {
				b.logger.Warn("local delivery failed",
					zap.String("stream", d.stream),
					zap.String("kind", d.env.Kind),
					zap.String("correlation_id", d.env.CorrelationID.String()),
					zap.Error(err))
			}
		}
	}
}

func (b *LocalBus) handlersFor(stream string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if stream == EventsStream {
		return b.eventSubs
	}
	return b.cmdSubs[stream]
}

// SubscribeEvents registers a handler for every event on the bus.
func (b *LocalBus) SubscribeEvents(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eventSubs = append(b.eventSubs, h)
}

// SubscribeCommands registers a handler for one destination's commands.
func (b *LocalBus) SubscribeCommands(destination string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stream := CommandStream(destination)
	b.cmdSubs[stream] = append(b.cmdSubs[stream], h)
}

// PublishEvent enqueues an event for every event subscriber.
func (b *LocalBus) PublishEvent(ctx context.Context, evt contracts.Event) error {
	return b.enqueue(ctx, EventsStream, evt)
}

// SendCommand enqueues a command for its destination's subscribers.
func (b *LocalBus) SendCommand(ctx context.Context, cmd contracts.Command) error {
	return b.enqueue(ctx, CommandStream(cmd.Destination()), cmd)
}

func (b *LocalBus) enqueue(ctx context.Context, stream string, msg contracts.Message) error {
	env, err := contracts.Wrap(msg)
	if err != nil {
		return err
	}

	// The read lock is held across the send so Close cannot close a
	// shard channel mid-publish.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	shard := b.shards[sharding.ShardFor(env.CorrelationID, len(b.shards))]

	select {
	case shard <- delivery{stream: stream, env: env}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting publishes and waits for queued deliveries to
// drain.
func (b *LocalBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	for _, ch := range b.shards {
		close(ch)
	}
	b.wg.Wait()
}
