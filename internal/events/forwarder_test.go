package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debemdeboas/coursesync/internal/events"
)

func TestForwarder_PublishesEnvelopes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 10}, watermill.NopLogger{})
	defer pubSub.Close()

	messages, err := pubSub.Subscribe(ctx, events.DefaultTopic)
	require.NoError(t, err)

	bus := events.NewBus()
	fwd := events.NewForwarder(pubSub, "")
	fwd.Attach(bus)
	defer fwd.Detach()

	bus.Publish(events.ProgressEvent{Key: "42", File: "intro.mp4", FileIndex: 0, TotalFiles: 1, Completed: 2, Total: 3})

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, "progress", msg.Metadata.Get(events.MetadataKind))
		assert.Equal(t, "42", msg.Metadata.Get(events.MetadataDraftKey))

		env, err := events.DecodeEnvelope(msg)
		require.NoError(t, err)
		assert.Equal(t, events.KindProgress, env.Kind)

		var progress events.ProgressEvent
		require.NoError(t, json.Unmarshal(env.Data, &progress))
		assert.Equal(t, 2, progress.Completed)
		assert.Equal(t, "intro.mp4", progress.File)
	case <-ctx.Done():
		t.Fatal("timed out waiting for forwarded event")
	}
}

func TestForwarder_Detach(t *testing.T) {
	bus := events.NewBus()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	fwd := events.NewForwarder(pubSub, "custom")
	fwd.Attach(bus)
	assert.Equal(t, 1, bus.Len(events.KindStart))

	fwd.Detach()
	assert.Equal(t, 0, bus.Len(events.KindStart))
}

func TestEnvelope_Event(t *testing.T) {
	published := []events.Event{
		events.StartEvent{Key: "new"},
		events.ProgressEvent{Key: "new", File: "a.mp4", TotalFiles: 1, Completed: 1, Total: 2},
		events.ProcessingEvent{Key: "new"},
		events.ErrorEvent{Key: "new", Message: "boom", ErrorType: "NETWORK"},
	}

	for _, e := range published {
		msg, err := events.NewMessage(e)
		require.NoError(t, err)
		env, err := events.DecodeEnvelope(msg)
		require.NoError(t, err)

		got, err := env.Event()
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	_, err := events.Envelope{Kind: "bogus"}.Event()
	assert.Error(t, err)
}
