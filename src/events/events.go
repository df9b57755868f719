// Package events announces provisioning outcomes to other services.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "events")

// Event kinds.
const (
	KindInstanceCreated     = "instance.created"
	KindInstanceFailed      = "instance.failed"
	KindTemplateInitialized = "template.initialized"
	KindTemplateFailed      = "template.failed"
	KindWorldLinked         = "world.linked"
	KindWorldExported       = "world.exported"
	KindMembersChanged      = "members.changed"
)

// DefaultSubjectPrefix prefixes every published subject.
const DefaultSubjectPrefix = "provision"

// Event describes one finished operation.
type Event struct {
	Kind     string    `json:"kind"`
	Instance string    `json:"instance,omitempty"`
	Type     string    `json:"type,omitempty"`
	Task     string    `json:"task,omitempty"`
	Owner    string    `json:"owner,omitempty"`
	OK       bool      `json:"ok"`
	Reason   string    `json:"reason,omitempty"`
	Path     string    `json:"path,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

type nop struct{}

func (nop) Publish(context.Context, Event) error { return nil }
func (nop) Close()                               {}

// Nop drops every event.
var Nop Publisher = nop{}

// NATSPublisher publishes JSON-encoded events on <prefix>.<kind>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATS connects to url. Reconnects are retried forever in the
// background; a publish while disconnected is buffered by the client.
func NewNATS(url, prefix string) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	opts := []nats.Option{
		nats.Name("instance-provision"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithFields(logrus.Fields{"at": "events.NewNATS", "error": err}).Warn("nats_disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithFields(logrus.Fields{"at": "events.NewNATS", "url": nc.ConnectedUrl()}).Info("nats_reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, oops.In("events").With("url", url).Wrapf(err, "connect to nats")
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject an event kind is published on.
func (p *NATSPublisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if p.nc == nil || p.nc.IsClosed() {
		return oops.In("events").Errorf("nats not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return oops.In("events").Wrapf(err, "encode event")
	}
	return p.nc.Publish(p.Subject(ev.Kind), payload)
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// Err, if set, is returned from every Publish after recording.
	Err error
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

func (r *Recorder) Close() {}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}
