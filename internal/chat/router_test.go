package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"echochat/internal/mocks"
	"echochat/internal/models"
	"echochat/internal/presence"
	"echochat/internal/server/auth"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	router *Router
	reaper *Reaper
	reg    *presence.Registry
	dir    *mocks.MockUserDirectory
	store  *mocks.MockMessageStore
	pub    *mocks.MockPublisher
}

func newFixture(t *testing.T, opts Options) fixture {
	ctrl := gomock.NewController(t)
	f := fixture{
		dir:   mocks.NewMockUserDirectory(ctrl),
		store: mocks.NewMockMessageStore(ctrl),
		pub:   mocks.NewMockPublisher(ctrl),
	}
	f.dir.EXPECT().SetOnlineStatus(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.reg = presence.NewRegistry(f.dir)
	opts.Now = func() time.Time { return fixedNow }
	f.router = NewRouter(f.reg, f.store, f.pub, opts)
	f.reaper = NewReaper(f.reg, f.router)
	return f
}

func (f fixture) known(names ...string) {
	for _, n := range names {
		f.dir.EXPECT().Exists(gomock.Any(), n).Return(true, nil).AnyTimes()
	}
}

func (f fixture) unknown(names ...string) {
	for _, n := range names {
		f.dir.EXPECT().Exists(gomock.Any(), n).Return(false, nil).AnyTimes()
	}
}

func TestJoin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.known("alice")

	var got []models.ChatMessage
	f.pub.EXPECT().Subscribe("s1", "alice").Return(nil)
	f.pub.EXPECT().Broadcast(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) error {
		got = append(got, m)
		return nil
	}).Times(1)

	err := f.router.Route(ctx, Inbound{SessionID: "s1", Destination: DestJoin, Message: models.ChatMessage{Sender: "alice"}})
	req.NoError(err)
	req.True(f.reg.IsOnline("alice"))
	req.Len(got, 1)
	req.Equal(models.MessageTypeJoin, got[0].Type)
	req.Equal("alice", got[0].Sender)
	req.Equal("", got[0].Content)
	req.Equal(fixedNow, got[0].Timestamp)
	req.Zero(got[0].ID)
}

func TestJoin_UnknownUserDropped(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	f.unknown("ghost")

	err := f.router.Route(context.Background(), Inbound{SessionID: "s1", Destination: DestJoin, Message: models.ChatMessage{Sender: "ghost"}})
	req.ErrorIs(err, ErrUnknownUser)
	req.False(f.reg.IsOnline("ghost"))
	_, ok := f.reg.SessionByID("s1")
	req.False(ok)
}

func TestJoin_SenderFromPrincipal(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	f.known("alice")
	f.pub.EXPECT().Subscribe("s1", "alice").Return(nil)
	f.pub.EXPECT().Broadcast(gomock.Any(), gomock.Any()).Return(nil)

	err := f.router.Route(context.Background(), Inbound{
		SessionID:   "s1",
		Principal:   &auth.Principal{UserID: "1", Username: "alice"},
		Destination: DestJoin,
	})
	req.NoError(err)
	req.True(f.reg.IsOnline("alice"))
}

func TestChat_PersistedThenBroadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	f.known("alice")

	var saved models.ChatMessage
	var broadcast models.ChatMessage
	gomock.InOrder(
		f.store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) (models.ChatMessage, error) {
			m.ID = 42
			saved = m
			return m, nil
		}),
		f.pub.EXPECT().Broadcast(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) error {
			broadcast = m
			return nil
		}),
	)

	err := f.router.Route(context.Background(), Inbound{SessionID: "s1", Destination: DestSendPublic, Message: models.ChatMessage{
		Type: models.MessageTypeChat, Sender: "alice", Content: "hi", Color: lo.ToPtr("#2196F3"),
	}})
	req.NoError(err)
	req.Equal(int64(42), broadcast.ID)
	req.Equal(saved, broadcast)
	req.Equal(fixedNow, broadcast.Timestamp)
	req.Equal("#2196F3", *broadcast.Color)
}

func TestChat_KeepsClientTimestampAndDefaultsType(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	f.known("alice")
	clientTS := fixedNow.Add(-time.Minute)

	f.store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) (models.ChatMessage, error) {
		req.Equal(models.MessageTypeChat, m.Type)
		req.Equal(clientTS, m.Timestamp)
		m.ID = 1
		return m, nil
	})
	f.pub.EXPECT().Broadcast(gomock.Any(), gomock.Any()).Return(nil)

	err := f.router.Route(context.Background(), Inbound{Destination: DestSendPublic, Message: models.ChatMessage{
		Sender: "alice", Content: "x", Timestamp: clientTS,
	}})
	req.NoError(err)
}

func TestTyping_BroadcastWithoutPersistence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	f.known("alice")
	f.pub.EXPECT().Broadcast(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) error {
		req.Equal(models.MessageTypeTyping, m.Type)
		req.Zero(m.ID)
		return nil
	})

	err := f.router.Route(context.Background(), Inbound{Destination: DestSendPublic, Message: models.ChatMessage{
		Type: models.MessageTypeTyping, Sender: "alice",
	}})
	req.NoError(err)
}

func TestSendPublic_RejectsNonPublicTypes(t *testing.T) {
	f := newFixture(t, Options{})
	for _, typ := range []models.MessageType{models.MessageTypeJoin, models.MessageTypeLeave, models.MessageTypePrivate} {
		t.Run(string(typ), func(t *testing.T) {
			err := f.router.Route(context.Background(), Inbound{Destination: DestSendPublic, Message: models.ChatMessage{
				Type: typ, Sender: "alice",
			}})
			require.ErrorIs(t, err, ErrUnsupportedType)
		})
	}
}

func TestChat_StorageFailureAbortsDelivery(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	f.known("alice")
	f.store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(models.ChatMessage{}, errors.New("disk full"))

	err := f.router.Route(context.Background(), Inbound{Destination: DestSendPublic, Message: models.ChatMessage{
		Type: models.MessageTypeChat, Sender: "alice", Content: "hi",
	}})
	req.ErrorIs(err, ErrStorageFailure)
}

func TestChat_BroadcastFailureDoesNotFailRouting(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	f.known("alice")
	f.store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) (models.ChatMessage, error) {
		m.ID = 1
		return m, nil
	})
	f.pub.EXPECT().Broadcast(gomock.Any(), gomock.Any()).Return(errors.New("hub closed"))

	err := f.router.Route(context.Background(), Inbound{Destination: DestSendPublic, Message: models.ChatMessage{
		Sender: "alice", Content: "hi",
	}})
	req.NoError(err)
}

func TestPrivate_TwoDeliveriesWithSameID(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	f.known("alice", "bob")

	f.store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) (models.ChatMessage, error) {
		req.Equal(models.MessageTypePrivate, m.Type)
		req.Equal("bob", m.RecipientName())
		m.ID = 7
		return m, nil
	})
	delivered := map[string]int64{}
	f.pub.EXPECT().SendPrivate(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, to string, m models.ChatMessage) error {
		delivered[to] = m.ID
		if to == "bob" {
			return errors.New("bob's queue is full")
		}
		return nil
	}).Times(2)

	// 客户端给的类型会被改写为 PRIVATE_MESSAGE
	err := f.router.Route(context.Background(), Inbound{Destination: DestSendPrivate, Message: models.ChatMessage{
		Type: models.MessageTypeChat, Sender: "alice", Recipient: lo.ToPtr("bob"), Content: "psst",
	}})
	req.NoError(err)
	req.Equal(map[string]int64{"alice": 7, "bob": 7}, delivered)
}

func TestPrivate_UnknownRecipientIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	f.known("alice")
	f.unknown("ghost")

	cases := map[string]*string{
		"unknown": lo.ToPtr("ghost"),
		"nil":     nil,
		"blank":   lo.ToPtr("  "),
	}
	for name, recipient := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.router.Route(context.Background(), Inbound{Destination: DestSendPrivate, Message: models.ChatMessage{
				Sender: "alice", Recipient: recipient, Content: "hello?",
			}})
			require.ErrorIs(t, err, ErrUnknownUser)
		})
	}
}

func TestPrivate_UnknownSenderIsNoop(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	f.unknown("bob")

	err := f.router.Route(context.Background(), Inbound{Destination: DestSendPrivate, Message: models.ChatMessage{
		Sender: "bob", Recipient: lo.ToPtr("alice"), Content: "hi",
	}})
	req.ErrorIs(err, ErrUnknownUser)
}

func TestRequirePrincipal(t *testing.T) {
	f := newFixture(t, Options{RequirePrincipal: true})
	alice := &auth.Principal{UserID: "1", Username: "alice"}

	cases := []struct {
		name string
		in   Inbound
	}{
		{"anonymous join", Inbound{Destination: DestJoin, Message: models.ChatMessage{Sender: "alice"}}},
		{"anonymous public", Inbound{Destination: DestSendPublic, Message: models.ChatMessage{Sender: "alice"}}},
		{"impersonating private", Inbound{Principal: alice, Destination: DestSendPrivate, Message: models.ChatMessage{
			Sender: "bob", Recipient: lo.ToPtr("alice"),
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, f.router.Route(context.Background(), tc.in), ErrUnauthenticated)
		})
	}
}

func TestRoute_UnknownDestination(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.router.Route(context.Background(), Inbound{Destination: "shout"})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestReaper_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.known("alice")
	f.pub.EXPECT().Subscribe("s1", "alice").Return(nil)

	var types []models.MessageType
	f.pub.EXPECT().Broadcast(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) error {
		types = append(types, m.Type)
		return nil
	}).Times(2)

	req.NoError(f.router.Route(ctx, Inbound{SessionID: "s1", Destination: DestJoin, Message: models.ChatMessage{Sender: "alice"}}))
	req.True(f.reaper.Disconnect(ctx, "s1"))
	req.False(f.reaper.Disconnect(ctx, "s1"))
	req.False(f.reg.IsOnline("alice"))
	req.Equal([]models.MessageType{models.MessageTypeJoin, models.MessageTypeLeave}, types)
}

func TestReaper_SessionWithoutJoin(t *testing.T) {
	f := newFixture(t, Options{})
	require.False(t, f.reaper.Disconnect(context.Background(), "never-joined"))
}

func TestReaper_OtherSessionKeepsUserOnline(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.known("alice")
	f.pub.EXPECT().Subscribe(gomock.Any(), "alice").Return(nil).Times(2)

	var types []models.MessageType
	f.pub.EXPECT().Broadcast(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) error {
		types = append(types, m.Type)
		return nil
	}).AnyTimes()

	req.NoError(f.router.Route(ctx, Inbound{SessionID: "tab1", Destination: DestJoin, Message: models.ChatMessage{Sender: "alice"}}))
	req.NoError(f.router.Route(ctx, Inbound{SessionID: "tab2", Destination: DestJoin, Message: models.ChatMessage{Sender: "alice"}}))

	req.True(f.reaper.Disconnect(ctx, "tab1"))
	req.True(f.reg.IsOnline("alice"))
	req.True(f.reaper.Disconnect(ctx, "tab2"))
	req.False(f.reg.IsOnline("alice"))
	req.Equal([]models.MessageType{models.MessageTypeJoin, models.MessageTypeJoin, models.MessageTypeLeave}, types)
}

func TestScenario_JoinChatUnknownPrivateDisconnect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.known("alice")
	f.unknown("bob")

	var broadcasts []models.ChatMessage
	f.pub.EXPECT().Subscribe("alice-session", "alice").Return(nil)
	f.pub.EXPECT().Broadcast(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) error {
		broadcasts = append(broadcasts, m)
		return nil
	}).Times(3)
	f.store.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m models.ChatMessage) (models.ChatMessage, error) {
		req.Equal(models.MessageTypeChat, m.Type)
		m.ID = 1
		return m, nil
	}).Times(1)

	// alice 加入
	req.NoError(f.router.Route(ctx, Inbound{SessionID: "alice-session", Destination: DestJoin, Message: models.ChatMessage{Sender: "alice"}}))
	req.True(f.reg.IsOnline("alice"))

	// alice 发言
	req.NoError(f.router.Route(ctx, Inbound{SessionID: "alice-session", Destination: DestSendPublic, Message: models.ChatMessage{
		Type: models.MessageTypeChat, Sender: "alice", Content: "hi",
	}}))

	// 未注册的 bob 私聊 alice：丢弃，不落库不投递
	err := f.router.Route(ctx, Inbound{SessionID: "bob-session", Destination: DestSendPrivate, Message: models.ChatMessage{
		Sender: "bob", Recipient: lo.ToPtr("alice"), Content: "hey",
	}})
	req.ErrorIs(err, ErrUnknownUser)

	// alice 断线
	req.True(f.reaper.Disconnect(ctx, "alice-session"))
	req.False(f.reg.IsOnline("alice"))

	req.Len(broadcasts, 3)
	req.Equal(models.MessageTypeJoin, broadcasts[0].Type)
	req.Equal(models.MessageTypeChat, broadcasts[1].Type)
	req.Equal("hi", broadcasts[1].Content)
	req.Equal(int64(1), broadcasts[1].ID)
	req.False(broadcasts[1].Timestamp.IsZero())
	req.Equal(models.MessageTypeLeave, broadcasts[2].Type)
	req.Equal("alice", broadcasts[2].Sender)
}
