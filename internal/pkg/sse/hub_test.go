package sse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishToTopic(t *testing.T) {
	hub := NewHub()
	mine, cleanupMine := hub.Subscribe("doctor-1")
	defer cleanupMine()
	other, cleanupOther := hub.Subscribe("doctor-2")
	defer cleanupOther()

	hub.Publish("doctor-1", Event{Name: "invitation.consumed", Data: map[string]string{"id": "inv-1"}})

	select {
	case ev := <-mine:
		assert.Equal(t, "invitation.consumed", ev.Name)
	default:
		t.Fatal("expected an event for doctor-1")
	}
	select {
	case <-other:
		t.Fatal("doctor-2 must not receive doctor-1 events")
	default:
	}
}

func TestHub_CleanupAndSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cleanup := hub.Subscribe("doctor-1")
	assert.Equal(t, 1, hub.SubscriberCount("doctor-1"))

	for i := 0; i < 100; i++ {
		hub.Publish("doctor-1", Event{Name: "tick"})
	}
	assert.Len(t, ch, 16)

	cleanup()
	cleanup()
	assert.Equal(t, 0, hub.SubscriberCount("doctor-1"))
	hub.Publish("doctor-1", Event{Name: "after-cleanup"})
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Event{Name: "invitation.revoked", Data: map[string]string{"invitationId": "inv-1"}}))
	assert.Equal(t, "event: invitation.revoked\ndata: {\"invitationId\":\"inv-1\"}\n\n", buf.String())
}
