package session

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
	"github.com/go-go-golems/coachchat/pkg/config"
	"github.com/go-go-golems/coachchat/pkg/delivery"
	"github.com/go-go-golems/coachchat/pkg/effects"
	"github.com/go-go-golems/coachchat/pkg/persistence/messagestore"
	"github.com/go-go-golems/coachchat/pkg/sem"
	"github.com/go-go-golems/coachchat/pkg/servermsg"
	"github.com/go-go-golems/coachchat/pkg/transport"
)

var testNow = time.UnixMilli(1_700_000_000_000)

func plain(id string, version int64, read bool) servermsg.ServerMessage {
	return servermsg.ServerMessage{
		ClientID:      id,
		ClientVersion: version,
		ClientStatus:  servermsg.StatusUnanswered,
		ClientRead:    read,
		Author:        servermsg.AuthorServer,
		Type:          servermsg.TypePlain,
		ServerText:    "message " + id,
		Timestamp:     servermsg.Millis(testNow.Add(-time.Hour).UnixMilli()),
	}
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *effects.Recorder) {
	t.Helper()
	stores, err := OpenStores(config.StoreConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	rec := effects.NewRecorder()
	opts = append([]Option{WithClock(delivery.NewManualClock(testNow)), WithSink(rec)}, opts...)
	s, err := New(config.Default(), stores, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, rec
}

func TestSession_InitializeWaitsForHydration(t *testing.T) {
	s, rec := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Hydrate(ctx, []servermsg.ServerMessage{plain("a", 1, true)}))

	require.NoError(t, s.Initialize(ctx, false))
	require.Zero(t, rec.Len())

	require.NoError(t, s.Initialize(ctx, true))
	effs := rec.Effects()
	require.Equal(t, effects.Initialized{}, effs[len(effs)-1])
	require.Len(t, effects.OfType[effects.AddMessage](effs), 1)

	rec.Reset()
	require.NoError(t, s.Initialize(ctx, true))
	require.Zero(t, rec.Len())
}

func TestSession_HistoryMarksUnreadAsRead(t *testing.T) {
	s, rec := newTestSession(t)
	ctx := context.Background()
	var msgs []servermsg.ServerMessage
	for i := 0; i < 15; i++ {
		msgs = append(msgs, plain(fmt.Sprintf("m%02d", i), 1, i < 12))
	}
	require.NoError(t, s.Hydrate(ctx, msgs))
	require.NoError(t, s.Initialize(ctx, true))

	require.Len(t, effects.OfType[effects.MarkRead](rec.Effects()), 3)
	for i := 12; i < 15; i++ {
		stored, ok, err := s.Messages().Get(ctx, fmt.Sprintf("m%02d", i))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, stored.ClientRead)
	}

	shown, err := s.Chat().List(ctx)
	require.NoError(t, err)
	require.Len(t, shown, 10)
	require.Equal(t, "m05-0", shown[0].ID)
	require.Equal(t, "m14-0", shown[9].ID)

	page, err := s.LoadEarlierPage(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, page.Inserted)
	require.False(t, page.HasEarlier)

	shown, err = s.Chat().List(ctx)
	require.NoError(t, err)
	require.Len(t, shown, 15)
	require.Equal(t, "m00-0", shown[0].ID)
}

func TestSession_LiveMessagesAfterInitialize(t *testing.T) {
	s, rec := newTestSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// buffered until initialization
	out, err := s.Ingest(ctx, plain("early", 1, false))
	require.NoError(t, err)
	require.Equal(t, messagestore.Inserted, out)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, s.Initialize(ctx, true))
	_, err = s.Ingest(ctx, plain("late", 1, false))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok, err := s.Chat().Get(ctx, "late-0")
		return err == nil && ok
	}, 5*time.Second, 5*time.Millisecond)

	shown, err := s.Chat().List(ctx)
	require.NoError(t, err)
	require.Len(t, shown, 2)
	require.Equal(t, "early-0", shown[0].ID)
	require.Equal(t, "late-0", shown[1].ID)

	// same version redelivered is neither stored twice nor shown twice
	out, err = s.Ingest(ctx, plain("late", 1, false))
	require.NoError(t, err)
	require.Equal(t, messagestore.Unchanged, out)

	updated := plain("late", 2, false)
	updated.ServerText = "edited"
	_, err = s.Ingest(ctx, updated)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		m, ok, err := s.Chat().Get(ctx, "late-0")
		return err == nil && ok && m.Text == "edited"
	}, 5*time.Second, 5*time.Millisecond)
	require.NotEmpty(t, effects.OfType[effects.UpdateMessage](rec.Effects()))

	cancel()
	require.NoError(t, <-done)
}

func TestSession_ResetClearsShownChat(t *testing.T) {
	var resets int
	s, rec := newTestSession(t, WithResetHook(func() { resets++ }))
	ctx := context.Background()
	require.NoError(t, s.Hydrate(ctx, []servermsg.ServerMessage{plain("a", 1, true), plain("b", 1, true)}))
	require.NoError(t, s.Initialize(ctx, true))

	require.NoError(t, s.Reset(ctx))
	require.Equal(t, 1, resets)
	require.Equal(t, -1, s.State().OldestShown())
	require.False(t, s.State().Added("a-0"))
	shown, err := s.Chat().List(ctx)
	require.NoError(t, err)
	require.Empty(t, shown)

	rec.Reset()
	require.NoError(t, s.Initialize(ctx, true))
	require.Len(t, effects.OfType[effects.AddMessage](rec.Effects()), 2)
}

func TestSession_WebViewEvents(t *testing.T) {
	s, rec := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.HandleWebViewEvent(ctx, `{"variable":"$score","value":7}`))
	require.NoError(t, s.HandleWebViewEvent(ctx, "close"))
	require.Error(t, s.HandleWebViewEvent(ctx, "{"))

	require.Equal(t, []effects.Effect{
		effects.VariableValue{Variable: "$score", Value: "7"},
		effects.CloseComponent{Completed: false},
	}, rec.Effects())
}

func TestSession_TransportRoundTrip(t *testing.T) {
	ps := transport.NewMemoryPubSub()
	defer func() { _ = ps.Close() }()
	s, _ := newTestSession(t, WithTransport(ps, "in", "out"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outbound, err := ps.Subscriber.Subscribe(ctx, "out")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.NoError(t, s.Initialize(ctx, true))
	require.NoError(t, transport.PublishServerMessage(ps.Publisher, "in", plain("x", 1, false)))

	select {
	case m := <-outbound:
		ev, err := sem.Decode(m.Payload)
		require.NoError(t, err)
		require.Equal(t, effects.TypeMarkRead, ev.Type)
		require.Equal(t, "x", ev.Data["clientId"])
		m.Ack()
	case <-ctx.Done():
		t.Fatal("no read receipt published")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestOpenStores(t *testing.T) {
	_, err := OpenStores(config.StoreConfig{Driver: "floppy"})
	require.Error(t, err)

	stores, err := OpenStores(config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "chat.db")})
	require.NoError(t, err)
	defer func() { require.NoError(t, stores.Close()) }()

	ctx := context.Background()
	_, err = stores.Messages.Upsert(ctx, plain("a", 1, false))
	require.NoError(t, err)
	list, err := stores.Messages.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSession_DrainPresentsQueuedMessages(t *testing.T) {
	s, rec := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx, true))

	_, err := s.Ingest(ctx, plain("a", 1, false))
	require.NoError(t, err)
	_, err = s.Ingest(ctx, plain("b", 1, false))
	require.NoError(t, err)

	n, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	further := effects.OfType[effects.FurtherExpected](rec.Effects())
	require.Equal(t, []effects.FurtherExpected{{Expected: true}, {Expected: false}}, further)
}

func TestSession_UnknownTypePassesThrough(t *testing.T) {
	s, rec := newTestSession(t)
	ctx := context.Background()

	odd := plain("odd", 1, true)
	odd.Type = servermsg.Type("QUESTION")
	require.NoError(t, s.Hydrate(ctx, []servermsg.ServerMessage{plain("a", 1, true), odd, plain("b", 1, true)}))
	require.NoError(t, s.Initialize(ctx, true))

	effs := rec.Effects()
	require.Equal(t, effects.Initialized{}, effs[len(effs)-1])
	shown, err := s.Chat().List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a-0", "odd-0", "b-0"}, chatIDs(shown))
	require.Equal(t, chatmsg.KindUnknown, shown[1].Kind)
	require.Equal(t, "message odd", shown[1].Text)

	live := plain("odd-live", 1, false)
	live.Type = servermsg.Type("QUESTION")
	_, err = s.Ingest(ctx, live)
	require.NoError(t, err)
	require.Equal(t, 1, s.Queue().Len())

	n, err := s.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	m, ok, err := s.Chat().Get(ctx, "odd-live-0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, chatmsg.KindUnknown, m.Kind)
}

func TestSession_VersionBumpKeepsReadReceipt(t *testing.T) {
	s, rec := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx, true))

	recent := plain("r", 1, false)
	recent.Timestamp = servermsg.Millis(testNow.UnixMilli())
	_, err := s.Ingest(ctx, recent)
	require.NoError(t, err)
	_, err = s.Drain(ctx)
	require.NoError(t, err)

	stored, ok, err := s.Messages().Get(ctx, "r")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, stored.ClientRead)
	require.NotNil(t, stored.FakeTimestamp)
	fake := *stored.FakeTimestamp

	edited := plain("r", 2, false)
	edited.Timestamp = recent.Timestamp
	edited.ServerText = "edited"
	_, err = s.Ingest(ctx, edited)
	require.NoError(t, err)
	_, err = s.Drain(ctx)
	require.NoError(t, err)

	stored, _, err = s.Messages().Get(ctx, "r")
	require.NoError(t, err)
	require.Equal(t, "edited", stored.ServerText)
	require.True(t, stored.ClientRead)
	require.NotNil(t, stored.FakeTimestamp)
	require.Equal(t, fake, *stored.FakeTimestamp)

	// a rebuilt chat neither re-sends the receipt nor loses the shown time
	require.NoError(t, s.Reset(ctx))
	rec.Reset()
	require.NoError(t, s.Initialize(ctx, true))
	require.Empty(t, effects.OfType[effects.MarkRead](rec.Effects()))
	m, ok, err := s.Chat().Get(ctx, "r-0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(fake), m.CreatedAt)
}

func chatIDs(msgs []chatmsg.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
