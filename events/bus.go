// Package events publishes run lifecycle events over NATS core subjects so
// operator tooling can watch runs without polling the API. Publishing is best
// effort: a down broker never blocks or fails a run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// RunEvent is the canonical event emitted as a run moves through its stages.
type RunEvent struct {
	RunID     string `json:"runId"`
	Flavor    string `json:"flavor"`
	BatchID   string `json:"batchId,omitempty"`
	Stage     string `json:"stage"`
	Timestamp string `json:"timestamp"`
}

func (e RunEvent) valid() bool {
	return e.RunID != "" && e.Stage != ""
}

// Bus is a NATS-backed publisher of run events.
type Bus struct {
	nc      *nats.Conn
	subject string
}

type Config struct {
	URL     string
	Subject string
}

func NewBus(cfg Config) (*Bus, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("echeq-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "echeq.runs"
	}
	return &Bus{nc: nc, subject: subject}, nil
}

func (b *Bus) Publish(ctx context.Context, evt RunEvent) error {
	if !evt.valid() {
		return fmt.Errorf("invalid run event: missing runId or stage")
	}
	if evt.Timestamp == "" {
		evt.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

// Subscribe delivers every run event to handler until ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, handler func(RunEvent)) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var evt RunEvent
		if err := json.Unmarshal(msg.Data, &evt); err == nil {
			handler(evt)
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return sub, nil
}

func (b *Bus) Close() {
	b.nc.Close()
}
