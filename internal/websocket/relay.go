package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/model"
)

// EventsChannel is the redis pub/sub channel carrying job events from
// workers to the HTTP process that holds the sockets.
const EventsChannel = "fridgechef:job-events"

// Publisher notifies subscribers of a job. Hub publishes in-process,
// RedisPublisher through redis.
type Publisher interface {
	Progress(kind model.JobKind, jobID string, progress int, status model.JobStatus, step string)
	Complete(kind model.JobKind, jobID string, status model.JobStatus, result any)
	Error(kind model.JobKind, jobID, code, message string)
}

var (
	_ Publisher = (*Hub)(nil)
	_ Publisher = (*RedisPublisher)(nil)
)

type envelope struct {
	JobID string          `json:"jobId"`
	Data  json.RawMessage `json:"data"`
}

type RedisPublisher struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, log: log.Named("ws.publisher")}
}

func (p *RedisPublisher) Progress(kind model.JobKind, jobID string, progress int, status model.JobStatus, step string) {
	p.publish(jobID, progressMessage(kind, jobID, progress, status, step))
}

func (p *RedisPublisher) Complete(kind model.JobKind, jobID string, status model.JobStatus, result any) {
	p.publish(jobID, completeMessage(kind, jobID, status, result))
}

func (p *RedisPublisher) Error(kind model.JobKind, jobID, code, message string) {
	p.publish(jobID, errorMessage(kind, jobID, code, message))
}

// publish is best effort: a lost event only delays a client that also polls.
func (p *RedisPublisher) publish(jobID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("failed to marshal event", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	env, err := json.Marshal(envelope{JobID: jobID, Data: data})
	if err != nil {
		p.log.Error("failed to marshal envelope", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.rdb.Publish(ctx, EventsChannel, env).Err(); err != nil {
		p.log.Warn("failed to publish event", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Relay forwards events from redis to the local hub.
type Relay struct {
	rdb *redis.Client
	hub *Hub
	log *zap.Logger
}

func NewRelay(rdb *redis.Client, hub *Hub, log *zap.Logger) *Relay {
	return &Relay{rdb: rdb, hub: hub, log: log.Named("ws.relay")}
}

// Run subscribes to EventsChannel until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, EventsChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("dropping malformed event", zap.Error(err))
				continue
			}
			r.hub.Deliver(env.JobID, env.Data)
		}
	}
}
