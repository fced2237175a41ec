package audit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []string
}

func (r *recordingSink) Record(event string, _ map[string]any) {
	r.events = append(r.events, event)
}

func TestLogSinkWritesFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.Record("attempt.paused", map[string]any{"attempt_id": "a1", "remaining_time": 120})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "attempt.paused", line["event"])
	assert.Equal(t, "a1", line["attempt_id"])
	assert.EqualValues(t, 120, line["remaining_time"])
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	Multi{a, Nop{}, b}.Record("attempt.started", nil)

	assert.Equal(t, []string{"attempt.started"}, a.events)
	assert.Equal(t, []string{"attempt.started"}, b.events)
}

func TestQueueSinkDropsWhenFull(t *testing.T) {
	// No pump is running, so the buffer fills up and Record must not block.
	sink := NewQueueSink(nil, "q", 2, zerolog.Nop())

	for i := 0; i < 5; i++ {
		sink.Record("attempt.answer_recorded", map[string]any{"attempt_id": "a1"})
	}

	assert.Len(t, sink.events, 2)
	assert.Equal(t, int64(3), sink.Dropped())

	var ev queuedEvent
	require.NoError(t, json.Unmarshal(<-sink.events, &ev))
	assert.Equal(t, "a1", ev.AttemptID)
	assert.Equal(t, "attempt.answer_recorded", ev.Event)
}
