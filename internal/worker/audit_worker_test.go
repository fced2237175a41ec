package worker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAuditPayload(t *testing.T) {
	id := uuid.New()
	raw := []byte(`{"event":"attempt.paused","attempt_id":"` + id.String() + `","fields":{"remaining_time":90},"timestamp":1767225600}`)

	p, err := decodeAuditPayload(raw)
	require.NoError(t, err)

	ev, err := p.toEvent()
	require.NoError(t, err)
	assert.Equal(t, id, ev.AttemptID)
	assert.Equal(t, "attempt.paused", ev.Event)
	assert.EqualValues(t, 90, ev.Fields["remaining_time"])
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), ev.RecordedAt)
}

func TestDecodeAuditPayloadRejectsGarbage(t *testing.T) {
	_, err := decodeAuditPayload([]byte(`not json`))
	assert.Error(t, err)

	_, err = decodeAuditPayload([]byte(`{"attempt_id":"x"}`))
	assert.Error(t, err)

	p, err := decodeAuditPayload([]byte(`{"event":"attempt.started","attempt_id":"bad"}`))
	require.NoError(t, err)
	_, err = p.toEvent()
	assert.Error(t, err)

	p, err = decodeAuditPayload([]byte(`{"event":"attempt.started","attempt_id":"` + uuid.NewString() + `"}`))
	require.NoError(t, err)
	ev, err := p.toEvent()
	require.NoError(t, err)
	assert.NotNil(t, ev.Fields)
}
