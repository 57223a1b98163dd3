package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// StreamName is the JetStream stream carrying delegation lifecycle events.
const StreamName = "DELEGATIONS"

// Event type constants. The event type doubles as the NATS subject.
const (
	EventDelegationCreated   = "delegation.created"
	EventDelegationModified  = "delegation.modified"
	EventDelegationRevoked   = "delegation.revoked"
	EventDelegationExpired   = "delegation.expired"
	EventDelegationProxyUsed = "delegation.proxy_used"
)

// DelegationEvent is the wire payload for delegation lifecycle events
type DelegationEvent struct {
	EventType       string `json:"eventType"`
	TenantID        string `json:"tenantId"`
	GrantID         string `json:"grantId"`
	DelegatorID     string `json:"delegatorId"`
	DelegateID      string `json:"delegateId"`
	Kind            string `json:"kind"`
	Status          string `json:"status"`
	ProxyApprovalID string `json:"proxyApprovalId,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// Publisher publishes delegation events to NATS JetStream. The service is
// fully functional without one; callers hold a nil Publisher when NATS is
// not configured.
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Entry
}

// NewPublisher connects to NATS and prepares a JetStream context
func NewPublisher(url, name string, logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Publisher{
		nc:     nc,
		js:     js,
		logger: logger.WithField("component", "delegation-events"),
	}, nil
}

// EnsureStream creates the delegation stream if it does not exist yet
func (p *Publisher) EnsureStream(ctx context.Context) error {
	_, err := p.js.StreamInfo(StreamName, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"delegation.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	}, nats.Context(ctx))
	return err
}

// Publish sends an event asynchronously. Failures are logged, never returned:
// event delivery is best effort and must not fail the originating operation.
func (p *Publisher) Publish(event *DelegationEvent) {
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		data, err := json.Marshal(event)
		if err != nil {
			p.logger.WithError(err).Error("Failed to marshal delegation event")
			return
		}

		if _, err := p.js.Publish(event.EventType, data, nats.Context(ctx)); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType": event.EventType,
				"grantId":   event.GrantID,
				"tenantId":  event.TenantID,
			}).WithError(err).Error("Failed to publish delegation event")
			return
		}

		p.logger.WithFields(logrus.Fields{
			"eventType": event.EventType,
			"grantId":   event.GrantID,
			"tenantId":  event.TenantID,
		}).Info("Delegation event published")
	}()
}

// Close drains the NATS connection
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}
