package subscriber

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope is one Buildbot message as received from a transport.
type Envelope struct {
	ID         string
	Source     string
	RoutingKey []string
	Payload    []byte
	ReceivedAt time.Time
}

// NewEnvelope stamps a message with a fresh ID and the receive time.
func NewEnvelope(source string, routingKey []string, payload []byte) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Source:     source,
		RoutingKey: routingKey,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
}

// RoutingKeyFromSubject splits a dotted subject or channel name into routing
// key tokens, dropping the configured prefix:
//
//	RoutingKeyFromSubject("buildbot.builds.12.finished", "buildbot") == []string{"builds", "12", "finished"}
func RoutingKeyFromSubject(subject, prefix string) []string {
	s := subject
	if prefix != "" {
		s = strings.TrimPrefix(s, strings.TrimSuffix(prefix, ".")+".")
	}
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// KeyString joins a routing key for logging.
func KeyString(key []string) string {
	return strings.Join(key, ".")
}
