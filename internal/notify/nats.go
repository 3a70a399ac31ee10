package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "agentrun.runs"

// unknownTaskToken replaces an empty task id in a subject.
const unknownTaskToken = "_unknown"

// Publisher is the part of *nats.Conn the NATSSink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each observation as JSON on <prefix>.<taskId>.
type NATSSink struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string

	errCount atomic.Uint64
}

// NewNATSSink wraps an existing publisher.
func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{pub: pub, prefix: strings.TrimSuffix(prefix, ".")}
}

// DialNATS connects to the NATS server at url and returns a sink owning
// the connection. Close drains it.
func DialNATS(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("agentrun"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	s := NewNATSSink(conn, prefix)
	s.conn = conn
	return s, nil
}

// Subject returns the subject observations for taskID are published on.
func (s *NATSSink) Subject(taskID string) string {
	return s.prefix + "." + subjectToken(taskID)
}

// Notify publishes obs. Failures are logged and counted; they never
// reach the caller.
func (s *NATSSink) Notify(obs models.Observation) {
	data, err := json.Marshal(obs)
	if err != nil {
		s.fail(obs, err)
		return
	}
	if err := s.pub.Publish(s.Subject(obs.TaskID), data); err != nil {
		s.fail(obs, err)
	}
}

func (s *NATSSink) fail(obs models.Observation, err error) {
	count := s.errCount.Add(1)
	if count%10 == 1 {
		log.Printf("[notify] WARNING: publish %s for task %s failed (total failures: %d): %v",
			obs.Type, obs.TaskID, count, err)
	}
}

// ErrorCount returns how many publishes have failed.
func (s *NATSSink) ErrorCount() uint64 {
	return s.errCount.Load()
}

// Close drains the owned connection, if any.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// subjectToken makes a task id safe to use as a single subject token.
func subjectToken(taskID string) string {
	if taskID == "" {
		return unknownTaskToken
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, taskID)
}
