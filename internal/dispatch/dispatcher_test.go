package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d := New(nil)
	var got []string

	d.Subscribe(NameMessageCreate, func(ctx context.Context, env Envelope) error {
		got = append(got, "first")
		return nil
	})
	d.SubscribeAll(func(ctx context.Context, env Envelope) error {
		got = append(got, "all")
		return nil
	})
	d.Subscribe(NameMessageCreate, func(ctx context.Context, env Envelope) error {
		got = append(got, "second")
		return nil
	})
	d.Subscribe(NameGuildCreate, func(ctx context.Context, env Envelope) error {
		got = append(got, "guild")
		return nil
	})

	d.Emit(context.Background(), Envelope{Event: MessageCreate{}})

	assert.Equal(t, []string{"first", "all", "second"}, got)
}

func TestDispatcher_FailingSubscriberDoesNotStopDelivery(t *testing.T) {
	d := New(nil)
	var calls []string

	d.Subscribe(NameReady, func(ctx context.Context, env Envelope) error {
		calls = append(calls, "error")
		return errors.New("boom")
	})
	d.Subscribe(NameReady, func(ctx context.Context, env Envelope) error {
		calls = append(calls, "panic")
		panic("handler bug")
	})
	d.Subscribe(NameReady, func(ctx context.Context, env Envelope) error {
		calls = append(calls, "ok")
		return nil
	})

	require.NotPanics(t, func() {
		d.Emit(context.Background(), Envelope{Name: NameReady, Event: Ready{}})
	})

	assert.Equal(t, []string{"error", "panic", "ok"}, calls)
	stats := d.Stats()
	assert.EqualValues(t, 1, stats.Emitted)
	assert.EqualValues(t, 1, stats.Delivered)
	assert.EqualValues(t, 1, stats.HandlerErrors)
	assert.EqualValues(t, 1, stats.Panics)
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := New(nil)
	count := 0
	unsub := d.Subscribe(NameTypingStart, func(ctx context.Context, env Envelope) error {
		count++
		return nil
	})

	d.Emit(context.Background(), Envelope{Event: TypingStart{}})
	unsub()
	unsub()
	d.Emit(context.Background(), Envelope{Event: TypingStart{}})

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, d.Len())
}

func TestDispatcher_ArrivalOrderAcrossEmits(t *testing.T) {
	d := New(nil)
	var seqs []int64
	d.SubscribeAll(func(ctx context.Context, env Envelope) error {
		seqs = append(seqs, env.Seq)
		return nil
	})

	for i := int64(1); i <= 5; i++ {
		d.Emit(context.Background(), Envelope{Seq: i, Event: MessageCreate{}})
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seqs)
}

func TestOn_TypedHandler(t *testing.T) {
	d := New(nil)
	var content string
	On(d, func(ctx context.Context, ev MessageCreate, env Envelope) error {
		content = ev.Content
		return nil
	})

	raw := json.RawMessage(`{"id":"1","channel_id":"2","content":"hello","author":{"id":"3","username":"alice"}}`)
	ev, err := Decode(NameMessageCreate, raw)
	require.NoError(t, err)

	d.Emit(context.Background(), Envelope{Name: NameMessageCreate, Raw: raw, Event: ev})
	assert.Equal(t, "hello", content)
}

func TestDecode(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		ev, err := Decode(NameReady, json.RawMessage(`{
			"v": 10,
			"user": {"id": "42", "username": "bot", "bot": true},
			"guilds": [{"id": "7", "unavailable": true}],
			"session_id": "abc",
			"resume_gateway_url": "wss://resume.example.com"
		}`))
		require.NoError(t, err)

		ready, ok := ev.(Ready)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, "abc", ready.SessionID)
		assert.Equal(t, "wss://resume.example.com", ready.ResumeGatewayURL)
		assert.True(t, ready.User.Bot)
		assert.Len(t, ready.Guilds, 1)
	})

	t.Run("channel update uses embedded fields", func(t *testing.T) {
		ev, err := Decode(NameChannelUpdate, json.RawMessage(`{"id":"9","name":"general","type":0}`))
		require.NoError(t, err)
		assert.Equal(t, "general", ev.(ChannelUpdate).Name)
	})

	t.Run("unknown name", func(t *testing.T) {
		raw := json.RawMessage(`{"x":1}`)
		ev, err := Decode("SOMETHING_NEW", raw)
		require.NoError(t, err)
		assert.Equal(t, Unknown{Name: "SOMETHING_NEW", Raw: raw}, ev)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := Decode(NameMessageDelete, json.RawMessage(`{"id": 12`))
		assert.Error(t, err)
	})
}
