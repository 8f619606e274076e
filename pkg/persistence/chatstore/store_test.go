package chatstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/coachchat/pkg/chatmsg"
	"github.com/go-go-golems/coachchat/pkg/effects"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	sqlite, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewInMemoryStore(0),
		"sqlite": sqlite,
	}
}

func record(id string, version int64, text string) chatmsg.Message {
	info := "info-1"
	return chatmsg.Message{
		ID:        id,
		Kind:      chatmsg.KindText,
		Text:      text,
		Author:    chatmsg.AuthorCoach,
		CreatedAt: 1000,
		Custom: chatmsg.Custom{
			ClientVersion: version,
			Visible:       true,
			InfoID:        &info,
			Options:       []chatmsg.AnswerOption{{Label: "a", Value: "1"}},
		},
	}
}

func ids(msgs []chatmsg.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestStore_AddOrdering(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Add(ctx, record("b-0", 1, "b"), false))
			require.NoError(t, s.Add(ctx, record("c-0", 1, "c"), false))
			require.NoError(t, s.Add(ctx, record("a-1", 1, "a1"), true))
			require.NoError(t, s.Add(ctx, record("a-0", 1, "a0"), true))

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"a-0", "a-1", "b-0", "c-0"}, ids(list))

			// re-adding keeps the position
			require.NoError(t, s.Add(ctx, record("b-0", 1, "b again"), true))
			list, err = s.List(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"a-0", "a-1", "b-0", "c-0"}, ids(list))
			require.Equal(t, "b again", list[2].Text)

			require.Error(t, s.Add(ctx, chatmsg.Message{Kind: chatmsg.KindText}, false))
		})
	}
}

func TestStore_RoundTripsAllFields(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := record("x-0", 4, "hello")
			require.NoError(t, s.Add(ctx, in, false))
			got, ok, err := s.Get(ctx, "x-0")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, in, got)
		})
	}
}

func TestStore_UpdateAndKnownVersion(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, ok, err := KnownVersion(ctx, s, "x")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, s.Add(ctx, record("x-0", 1, "v1"), false))
			v, ok, err := KnownVersion(ctx, s, "x")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, int64(1), v)

			found, err := s.Update(ctx, record("x-0", 2, "v2"))
			require.NoError(t, err)
			require.True(t, found)
			v, _, err = KnownVersion(ctx, s, "x")
			require.NoError(t, err)
			require.Equal(t, int64(2), v)

			found, err = s.Update(ctx, record("y-0", 2, "nope"))
			require.NoError(t, err)
			require.False(t, found)

			require.NoError(t, s.Reset(ctx))
			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Empty(t, list)
		})
	}
}

func TestInMemoryStore_EvictsOldestShown(t *testing.T) {
	s := NewInMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, record("a-0", 1, "a"), false))
	require.NoError(t, s.Add(ctx, record("b-0", 1, "b"), false))
	require.NoError(t, s.Add(ctx, record("c-0", 1, "c"), false))
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"b-0", "c-0"}, ids(list))
	_, ok, err := s.Get(ctx, "a-0")
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := KnownVersion(ctx, s, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), v)

	// a newer version of an evicted message is absorbed, not re-appended
	p := NewProjector(s)
	require.NoError(t, p.Emit(ctx, effects.UpdateMessage{
		ClientID: "a",
		Messages: []chatmsg.Message{record("a-0", 2, "a, edited"), record("a-1", 2, "more")},
	}))
	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"b-0", "c-0"}, ids(list))
	v, _, err = KnownVersion(ctx, s, "a")
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	require.NoError(t, s.Reset(ctx))
	_, ok, err = KnownVersion(ctx, s, "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProjector(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(0)
	p := NewProjector(s)

	require.NoError(t, p.Emit(ctx, effects.AddMessage{Message: record("m-0", 1, "one")}))
	require.NoError(t, p.Emit(ctx, effects.AddMessage{Message: record("old-0", 1, "old"), AddToStart: true}))
	require.NoError(t, p.Emit(ctx, effects.Typing{On: true}))
	require.NoError(t, p.Emit(ctx, effects.UpdateMessage{
		ClientID: "m",
		Messages: []chatmsg.Message{record("m-0", 2, "one, edited"), record("m-1", 2, "two")},
	}))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"old-0", "m-0", "m-1"}, ids(list))
	require.Equal(t, "one, edited", list[1].Text)
	require.Equal(t, int64(2), list[1].Custom.ClientVersion)

	require.Error(t, (&Projector{}).Emit(ctx, effects.Typing{}))
}
