package notify

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, data: data})
	return nil
}

func TestNATSSink_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "clinic.runs.")

	progress := 0.5
	sink.Notify(models.Observation{
		Type:     models.ObservationEvent,
		TaskID:   "t1",
		RunID:    "run-1",
		Step:     "asr.check",
		Progress: &progress,
	})

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "clinic.runs.t1", pub.msgs[0].subject)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &decoded))
	assert.Equal(t, "event", decoded["type"])
	assert.Equal(t, "run-1", decoded["runId"])
	assert.Equal(t, "asr.check", decoded["step"])
	assert.InDelta(t, 0.5, decoded["progress"], 1e-9)
}

func TestNATSSink_Subject(t *testing.T) {
	sink := NewNATSSink(&fakePublisher{}, "")

	tests := map[string]string{
		"t1":         DefaultSubjectPrefix + ".t1",
		"a.b":        DefaultSubjectPrefix + ".a_b",
		"wild*card>": DefaultSubjectPrefix + ".wild_card_",
		"with space": DefaultSubjectPrefix + ".with_space",
		"":           DefaultSubjectPrefix + "." + unknownTaskToken,
	}
	for taskID, want := range tests {
		assert.Equal(t, want, sink.Subject(taskID), "task %q", taskID)
	}
}

func TestNATSSink_PublishErrorIsCounted(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection closed")}
	sink := NewNATSSink(pub, "p")

	sink.Notify(models.Observation{Type: models.ObservationHello, TaskID: "t1"})
	sink.Notify(models.Observation{Type: models.ObservationHello, TaskID: "t1"})

	assert.Equal(t, uint64(2), sink.ErrorCount())
	assert.NoError(t, sink.Close())
}
