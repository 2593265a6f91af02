// Package events forwards audit records to NATS JetStream. Records are
// written to SQLite first and published asynchronously, so a broker outage
// delays delivery instead of losing events or blocking command execution.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/codedesk/codedesk/internal/audit"
)

const (
	streamName    = "CODEDESK_EVENTS"
	subjectPrefix = "codedesk.events"
	syncInterval  = 2 * time.Second
	syncBatchSize = 100
)

// Publisher drains unsynced audit events into NATS JetStream.
type Publisher struct {
	nc       *nats.Conn
	js       nats.JetStreamContext
	auditLog *audit.Log
	instance string
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Envelope is the JSON payload published to NATS.
type Envelope struct {
	Type      string          `json:"type"`
	Instance  string          `json:"instance"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(natsURL string, auditLog *audit.Log) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Ensure the stream exists
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ".>"},
		MaxAge:   7 * 24 * time.Hour, // Retain for 7 days
	})
	if err != nil {
		// Stream may already exist, that's OK
		log.Printf("events: stream setup: %v", err)
	}

	instance, _ := os.Hostname()
	return &Publisher{
		nc:       nc,
		js:       js,
		auditLog: auditLog,
		instance: instance,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins the event sync loop (every 2 seconds).
func (p *Publisher) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.syncEvents()
			case <-p.stop:
				// Final flush
				p.syncEvents()
				return
			}
		}
	}()
}

// Stop stops the event sync loop and closes the NATS connection.
func (p *Publisher) Stop() {
	close(p.stop)
	p.wg.Wait()
	p.nc.Close()
}

func (p *Publisher) syncEvents() {
	events, err := p.auditLog.UnsyncedEvents(syncBatchSize)
	if err != nil {
		log.Printf("events: failed to read unsynced events: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}

	var synced []int64
	for _, e := range events {
		ts, _ := time.Parse("2006-01-02 15:04:05", e.CreatedAt)
		envelope := Envelope{
			Type:      e.Type,
			Instance:  p.instance,
			Payload:   json.RawMessage(e.Payload),
			Timestamp: ts,
		}
		data, _ := json.Marshal(envelope)

		subject := fmt.Sprintf("%s.%s", subjectPrefix, e.Type)
		if _, err := p.js.Publish(subject, data); err != nil {
			log.Printf("events: publish error: %v", err)
			continue
		}
		synced = append(synced, e.ID)
	}

	if err := p.auditLog.MarkSynced(synced); err != nil {
		log.Printf("events: mark synced error: %v", err)
		return
	}
	if len(synced) > 0 {
		log.Printf("events: synced %d events to NATS", len(synced))
	}
}
