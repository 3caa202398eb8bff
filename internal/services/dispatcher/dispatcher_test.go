package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/scanogram/internal/dependencies/keylock"
	"github.com/mcoot/scanogram/internal/dependencies/mocks"
	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/services/chat"
	"github.com/mcoot/scanogram/internal/services/directory"
	"github.com/mcoot/scanogram/internal/services/identity"
	"github.com/mcoot/scanogram/internal/services/ledger"
	"github.com/mcoot/scanogram/internal/services/registry"
	"github.com/mcoot/scanogram/internal/services/snapshot"
	"github.com/mcoot/scanogram/internal/storage/memory"
	"github.com/mcoot/scanogram/internal/testutil"
	"github.com/mcoot/scanogram/internal/web/ws"
	"github.com/mcoot/scanogram/internal/web/ws/wstest"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type DispatcherSuite struct {
	suite.Suite
	storage    *memory.Storage
	clock      *mocks.MockClock
	random     *mocks.MockRandom
	hubs       *ws.HubManager
	ledger     *ledger.Ledger
	chat       *chat.Log
	registry   *registry.Registry
	dispatcher *Dispatcher
	ctx        context.Context
	nextConn   int
}

// client is one connected session as the tests drive it
type client struct {
	conn    *wstest.Conn
	session model.Session
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	logger := testutil.NopLogger()
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.hubs = ws.NewHubManager(logger)
	s.ctx = context.Background()
	s.nextConn = 0

	ids := identity.NewService(s.storage, s.clock, s.random)
	rooms := directory.New(s.storage, s.clock, s.random, directory.Config{})
	s.ledger = ledger.New(s.storage, rooms, s.clock)
	s.chat = chat.New(s.storage, s.clock, s.random, chat.Config{})
	s.registry = registry.New(ids, logger)

	s.dispatcher = New(Components{
		Locks:     keylock.NewDomains(),
		Identity:  ids,
		Registry:  s.registry,
		Rooms:     rooms,
		Ledger:    s.ledger,
		Chat:      s.chat,
		Snapshots: snapshot.New(s.storage),
		Hubs:      s.hubs,
	}, s.clock, logger)
}

func (s *DispatcherSuite) TearDownTest() {
	s.hubs.Close()
}

func (s *DispatcherSuite) connectAs(playerID model.PlayerID, device model.DeviceDescriptor) *client {
	s.nextConn++
	conn := wstest.NewConn(model.SessionID(fmt.Sprintf("session-%d", s.nextConn)))
	session, err := s.dispatcher.Connect(s.ctx, conn, ws.Handshake{PlayerID: playerID, Device: device})
	s.Require().NoError(err)
	return &client{conn: conn, session: session}
}

func (s *DispatcherSuite) connect() *client {
	return s.connectAs("", model.DeviceDescriptor{})
}

func (s *DispatcherSuite) send(c *client, event model.EventName, data any) {
	s.sendAck(c, event, data, nil)
}

func (s *DispatcherSuite) sendAck(c *client, event model.EventName, data any, ack *int64) {
	raw, err := ws.Encode(event, data, ack)
	s.Require().NoError(err)
	frame, err := ws.Decode(raw)
	s.Require().NoError(err)
	s.dispatcher.Handle(s.ctx, c.session, frame)
}

func (s *DispatcherSuite) createRoom(c *client, maxPlayers int) model.RoomCode {
	s.send(c, model.EventCreateRoom, model.RoomConfig{Name: "Test", MaxPlayers: maxPlayers})
	var code model.RoomCode
	s.Require().True(c.conn.Last(model.EventRoomCreated, &code), "expected roomCreated")
	return code
}

func (s *DispatcherSuite) join(c *client, code model.RoomCode) {
	s.send(c, model.EventJoinRoom, code)
	s.Require().Equal(0, c.conn.Count(model.EventError), "unexpected error joining %s", code)
}

func (s *DispatcherSuite) waitCount(c *client, event model.EventName, n int) {
	s.Require().Eventually(func() bool {
		return c.conn.Count(event) >= n
	}, waitFor, tick, "expected %d %s events for %s", n, event, c.session.ID)
}

func (s *DispatcherSuite) lastError(c *client) model.ErrorPayload {
	var payload model.ErrorPayload
	s.Require().True(c.conn.Last(model.EventError, &payload), "expected an error event")
	return payload
}

func (s *DispatcherSuite) membership(code model.RoomCode, c *client) *model.Membership {
	m, err := s.storage.GetMembership(s.ctx, code, c.session.PlayerID)
	s.Require().NoError(err)
	return m
}

func (s *DispatcherSuite) assertSingleAdmin(code model.RoomCode) {
	room, err := s.storage.GetRoom(s.ctx, code)
	s.Require().NoError(err)
	members, err := s.storage.GetMembershipsForRoom(s.ctx, code)
	s.Require().NoError(err)

	admins := 0
	for _, m := range members {
		if m.IsAdmin {
			admins++
			s.Equal(room.AdminID, m.PlayerID)
		}
	}
	s.Equal(1, admins)
}

// Connect

func (s *DispatcherSuite) TestConnect_NewPlayer() {
	c := s.connect()

	var player model.PopulatedPlayer
	s.Require().True(c.conn.Last(model.EventPlayerConnected, &player))
	s.Equal(c.session.PlayerID, player.ID)
	s.True(player.IsActive)
	s.Require().Len(player.Devices, 1)
	s.Equal(c.session.DeviceID, player.Devices[0].ID)

	var rooms []model.PopulatedRoom
	s.Require().True(c.conn.Last(model.EventPlayerRooms, &rooms))
	s.Empty(rooms)

	s.waitCount(c, model.EventGameStats, 1)
	var overview model.AppOverview
	s.Require().True(c.conn.Last(model.EventGameStats, &overview))
	s.Equal(1, overview.TotalPlayers)
}

func (s *DispatcherSuite) TestConnect_KnownPlayerKeepsIdentity() {
	first := s.connect()
	s.dispatcher.Disconnect(s.ctx, first.session)

	second := s.connectAs(first.session.PlayerID, model.DeviceDescriptor{})
	s.Equal(first.session.PlayerID, second.session.PlayerID)
	s.Equal(first.session.DeviceID, second.session.DeviceID)

	player, err := s.storage.GetPlayer(s.ctx, first.session.PlayerID)
	s.Require().NoError(err)
	s.True(player.IsActive)
}

func (s *DispatcherSuite) TestConnect_UnknownPlayerGetsFreshIdentity() {
	c := s.connectAs("does-not-exist", model.DeviceDescriptor{})
	s.NotEqual(model.PlayerID("does-not-exist"), c.session.PlayerID)
}

func (s *DispatcherSuite) TestConnect_ListsActiveRooms() {
	a := s.connect()
	code := s.createRoom(a, 4)

	again := s.connectAs(a.session.PlayerID, model.DeviceDescriptor{})
	var rooms []model.PopulatedRoom
	s.Require().True(again.conn.Last(model.EventPlayerRooms, &rooms))
	s.Require().Len(rooms, 1)
	s.Equal(code, rooms[0].ID)
}

func (s *DispatcherSuite) TestConnect_SnapshotFramesComeFirstUnderChurn() {
	a := s.connect()
	code := s.createRoom(a, 4)
	b := s.connect()
	s.join(b, code)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.send(b, model.EventSendMessage, model.SendMessagePayload{RoomID: code, Message: "noise"})
			}
		}
	}()
	for i := range 4 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; ; n++ {
				select {
				case <-stop:
					return
				default:
				}
				conn := wstest.NewConn(model.SessionID(fmt.Sprintf("churn-%d-%d", i, n)))
				session, err := s.dispatcher.Connect(s.ctx, conn, ws.Handshake{})
				if err != nil {
					continue
				}
				s.dispatcher.Disconnect(s.ctx, session)
			}
		}(i)
	}

	for range 50 {
		again := s.connectAs(a.session.PlayerID, model.DeviceDescriptor{})
		frames := again.conn.Frames()
		s.Require().GreaterOrEqual(len(frames), 2)
		s.Equal(model.EventPlayerConnected, frames[0].Event)
		s.Equal(model.EventPlayerRooms, frames[1].Event)

		var rooms []model.PopulatedRoom
		s.Require().NoError(json.Unmarshal(frames[1].Data, &rooms))
		s.Require().Len(rooms, 1)
		s.Equal(code, rooms[0].ID)
	}
	close(stop)
	wg.Wait()
}

func (s *DispatcherSuite) TestOverview_LastStatsAreCurrent() {
	observer := s.connect()

	const creators = 12
	clients := make([]*client, creators)
	for i := range clients {
		clients[i] = s.connect()
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			s.send(c, model.EventCreateRoom, model.RoomConfig{Name: "Test", MaxPlayers: 4})
		}(c)
	}
	wg.Wait()

	s.Require().Eventually(func() bool {
		var overview model.AppOverview
		return observer.conn.Last(model.EventGameStats, &overview) &&
			overview.TotalRooms == creators &&
			overview.TotalPlayers == creators+1
	}, waitFor, tick)

	// nothing older may trail in after the current totals
	time.Sleep(20 * time.Millisecond)
	var overview model.AppOverview
	s.Require().True(observer.conn.Last(model.EventGameStats, &overview))
	s.Equal(creators, overview.TotalRooms)
}

// Rooms

func (s *DispatcherSuite) TestCreateRoom() {
	a := s.connect()
	code := s.createRoom(a, 4)

	s.Len(code, directory.CodeLength)
	m := s.membership(code, a)
	s.True(m.IsActive)
	s.True(m.IsAdmin)

	s.waitCount(a, model.EventRoomUpdated, 1)
	var room model.PopulatedRoom
	s.Require().True(a.conn.Last(model.EventRoomUpdated, &room))
	s.Equal("Test", room.Name)
	s.Equal(a.session.PlayerID, room.AdminID)
	s.Len(room.RoomMemberships, 1)
}

func (s *DispatcherSuite) TestCreateRoom_AckCarriesCode() {
	a := s.connect()
	ack := int64(7)
	s.sendAck(a, model.EventCreateRoom, model.RoomConfig{Name: "Test", MaxPlayers: 4}, &ack)

	frames := a.conn.Events(model.EventAck)
	s.Require().Len(frames, 1)
	s.Require().NotNil(frames[0].Ack)
	s.Equal(int64(7), *frames[0].Ack)
	s.Equal(0, a.conn.Count(model.EventRoomCreated))

	var code model.RoomCode
	s.Require().NoError(json.Unmarshal(frames[0].Data, &code))
	_, err := s.storage.GetRoom(s.ctx, code)
	s.NoError(err)
}

func (s *DispatcherSuite) TestCreateRoom_InvalidConfig() {
	a := s.connect()
	s.send(a, model.EventCreateRoom, model.RoomConfig{Name: " ", MaxPlayers: 4})
	s.Equal(model.CodeInvalidConfig, s.lastError(a).Code)

	s.send(a, model.EventCreateRoom, model.RoomConfig{Name: "Test", MaxPlayers: 1})
	s.Equal(model.CodeInvalidConfig, s.lastError(a).Code)

	count, err := s.storage.CountRooms(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, count)
}

func (s *DispatcherSuite) TestJoinRoom_NotFound() {
	a := s.connect()
	s.send(a, model.EventJoinRoom, "NOPE00")

	reason := s.lastError(a)
	s.Equal(model.CodeRoomNotFound, reason.Code)
	s.Equal("Room not found", reason.Message)
}

func (s *DispatcherSuite) TestJoinRoom_CodeIsCaseInsensitive() {
	a := s.connect()
	s.random.QueueString("ABC123")
	code := s.createRoom(a, 4)
	s.Require().Equal(model.RoomCode("ABC123"), code)

	b := s.connect()
	s.join(b, "abc123")
	s.True(s.membership(code, b).IsActive)
}

func (s *DispatcherSuite) TestJoinRoom_RejoinIsIdempotent() {
	a := s.connect()
	code := s.createRoom(a, 2)
	b := s.connect()
	s.join(b, code)
	s.join(b, code)

	members, err := s.storage.GetMembershipsForRoom(s.ctx, code)
	s.Require().NoError(err)
	s.Len(members, 2)
}

func (s *DispatcherSuite) TestJoinRoom_ActiveMemberJoiningAgainIsNotAnnounced() {
	a := s.connect()
	code := s.createRoom(a, 4)
	b := s.connect()
	s.join(b, code)
	s.waitCount(a, model.EventPlayerJoined, 1)

	s.join(b, code)
	s.Equal(2, b.conn.Count(model.EventRoomJoined))

	time.Sleep(20 * time.Millisecond)
	s.Equal(1, a.conn.Count(model.EventPlayerJoined))
}

func (s *DispatcherSuite) TestEndToEnd() {
	a := s.connect()
	code := s.createRoom(a, 2)

	b := s.connect()
	s.join(b, code)
	var joined model.RoomCode
	s.Require().True(b.conn.Last(model.EventRoomJoined, &joined))
	s.Equal(code, joined)

	s.waitCount(a, model.EventPlayerJoined, 1)
	var notice model.PlayerNotice
	s.Require().True(a.conn.Last(model.EventPlayerJoined, &notice))
	s.Equal(b.session.PlayerID, notice.PlayerID)
	s.Equal(0, b.conn.Count(model.EventPlayerJoined))

	s.Require().Eventually(func() bool {
		var room model.PopulatedRoom
		return a.conn.Last(model.EventRoomUpdated, &room) && room.ActiveCount() == 2
	}, waitFor, tick)

	c := s.connect()
	s.send(c, model.EventJoinRoom, code)
	reason := s.lastError(c)
	s.Equal(model.CodeRoomFull, reason.Code)
	s.Equal("Room is full", reason.Message)

	s.send(b, model.EventSendMessage, model.SendMessagePayload{RoomID: code, Message: "hi"})
	for _, member := range []*client{a, b} {
		s.waitCount(member, model.EventSentMessage, 1)
		var msg model.Message
		s.Require().True(member.conn.Last(model.EventSentMessage, &msg))
		s.Equal("hi", msg.Text)
		s.Equal(b.session.PlayerID, msg.PlayerID)
	}
	s.Equal(0, c.conn.Count(model.EventSentMessage))

	s.send(b, model.EventStartGame, code)
	s.Equal(model.CodeNotAdmin, s.lastError(b).Code)

	s.send(a, model.EventStartGame, code)
	for _, member := range []*client{a, b} {
		s.waitCount(member, model.EventGameStatus, 1)
		var started bool
		s.Require().True(member.conn.Last(model.EventGameStatus, &started))
		s.True(started)
	}

	s.send(a, model.EventStartGame, code)
	s.Equal(model.CodeGameAlreadyStarted, s.lastError(a).Code)

	s.send(b, model.EventGameWon, model.GameWonPayload{RoomCode: code})
	s.send(a, model.EventGameWon, model.GameWonPayload{RoomCode: code})
	for _, member := range []*client{a, b} {
		s.waitCount(member, model.EventGameWon, 1)
		var winner model.WinnerPayload
		s.Require().True(member.conn.Last(model.EventGameWon, &winner))
		s.Equal(b.session.PlayerID, winner.PlayerID)
	}

	room, err := s.storage.GetRoom(s.ctx, code)
	s.Require().NoError(err)
	s.Equal(b.session.PlayerID, room.WinnerID)
	s.assertSingleAdmin(code)

	// give the hubs time to flush before checking nothing else arrived
	time.Sleep(20 * time.Millisecond)
	s.Equal(1, a.conn.Count(model.EventGameWon))

	s.dispatcher.Disconnect(s.ctx, a.session)
	s.Require().Eventually(func() bool {
		var room model.PopulatedRoom
		if !b.conn.Last(model.EventRoomUpdated, &room) {
			return false
		}
		for _, m := range room.RoomMemberships {
			if m.PlayerID == a.session.PlayerID {
				return !m.IsActive
			}
		}
		return false
	}, waitFor, tick, "expected a snapshot showing %s inactive", a.session.PlayerID)

	back := s.connectAs(a.session.PlayerID, model.DeviceDescriptor{})
	s.join(back, code)

	members, err := s.storage.GetMembershipsForRoom(s.ctx, code)
	s.Require().NoError(err)
	mine := 0
	for _, m := range members {
		if m.PlayerID == a.session.PlayerID {
			mine++
			s.True(m.IsActive)
		}
	}
	s.Equal(1, mine)
}

func (s *DispatcherSuite) TestLeaveRoom() {
	a := s.connect()
	code := s.createRoom(a, 4)
	b := s.connect()
	s.join(b, code)

	s.send(b, model.EventLeaveRoom, code)
	s.False(s.membership(code, b).IsActive)
	s.NotContains(s.hubs.RoomMembers(code), b.session.ID)

	s.waitCount(a, model.EventPlayerLeft, 1)
	var notice model.PlayerNotice
	s.Require().True(a.conn.Last(model.EventPlayerLeft, &notice))
	s.Equal(b.session.PlayerID, notice.PlayerID)

	s.send(b, model.EventLeaveRoom, code)
	s.Equal(model.CodeNotInRoom, s.lastError(b).Code)
}

func (s *DispatcherSuite) TestLeaveRoom_AdminHandsOver() {
	a := s.connect()
	code := s.createRoom(a, 4)
	b := s.connect()
	s.join(b, code)

	s.send(a, model.EventLeaveRoom, code)

	s.waitCount(b, model.EventAdminChanged, 1)
	var changed model.AdminChangedPayload
	s.Require().True(b.conn.Last(model.EventAdminChanged, &changed))
	s.Equal(b.session.PlayerID, changed.AdminID)
	s.True(s.membership(code, b).IsAdmin)
	s.False(s.membership(code, a).IsAdmin)
	s.assertSingleAdmin(code)
}

// Chat

func (s *DispatcherSuite) TestSendMessage_EmptyIsIgnored() {
	a := s.connect()
	code := s.createRoom(a, 4)

	s.send(a, model.EventSendMessage, model.SendMessagePayload{RoomID: code, Message: "   "})
	s.Equal(0, a.conn.Count(model.EventError))

	messages, err := s.chat.List(s.ctx, code)
	s.Require().NoError(err)
	s.Empty(messages)
}

func (s *DispatcherSuite) TestSendMessage_NotInRoom() {
	a := s.connect()
	code := s.createRoom(a, 4)
	b := s.connect()

	s.send(b, model.EventSendMessage, model.SendMessagePayload{RoomID: code, Message: "hi"})
	s.Equal(model.CodeNotInRoom, s.lastError(b).Code)
}

func (s *DispatcherSuite) TestSendMessage_OrderIsSharedByAllMembers() {
	a := s.connect()
	code := s.createRoom(a, 4)
	b := s.connect()
	s.join(b, code)
	c := s.connect()
	s.join(c, code)

	const perSender = 40
	var wg sync.WaitGroup
	for _, sender := range []*client{a, b} {
		wg.Add(1)
		go func(sender *client) {
			defer wg.Done()
			for i := range perSender {
				s.send(sender, model.EventSendMessage, model.SendMessagePayload{
					RoomID:  code,
					Message: fmt.Sprintf("%s-%d", sender.session.ID, i),
				})
			}
		}(sender)
	}
	wg.Wait()

	observed := func(member *client) []string {
		var ids []string
		for _, f := range member.conn.Events(model.EventSentMessage) {
			var msg model.Message
			s.Require().NoError(json.Unmarshal(f.Data, &msg))
			ids = append(ids, msg.ID)
		}
		return ids
	}

	for _, member := range []*client{a, b, c} {
		s.waitCount(member, model.EventSentMessage, 2*perSender)
	}

	stored, err := s.chat.List(s.ctx, code)
	s.Require().NoError(err)
	s.Require().Len(stored, 2*perSender)
	want := make([]string, len(stored))
	for i, m := range stored {
		want[i] = m.ID
	}

	for _, member := range []*client{a, b, c} {
		s.Equal(want, observed(member), "order seen by %s", member.session.ID)
	}
}

// Telemetry

func (s *DispatcherSuite) TestPlayerUpdate_RelayedToOthers() {
	a := s.connect()
	code := s.createRoom(a, 4)
	b := s.connect()
	s.join(b, code)

	state := json.RawMessage(`{"score":3}`)
	s.send(b, model.EventPlayerUpdate, model.PlayerUpdatePayload{RoomCode: code, State: state})
	s.Equal(model.CodeGameNotStarted, s.lastError(b).Code)

	s.send(a, model.EventStartGame, code)
	s.send(b, model.EventPlayerUpdate, model.PlayerUpdatePayload{RoomCode: code, State: state})

	s.waitCount(a, model.EventPlayerUpdate, 1)
	var update model.PlayerStatePayload
	s.Require().True(a.conn.Last(model.EventPlayerUpdate, &update))
	s.Equal(b.session.PlayerID, update.PlayerID)
	s.JSONEq(`{"score":3}`, string(update.State))

	time.Sleep(20 * time.Millisecond)
	s.Equal(0, b.conn.Count(model.EventPlayerUpdate))
}

func (s *DispatcherSuite) TestGameWon_BeforeStart() {
	a := s.connect()
	code := s.createRoom(a, 4)

	s.send(a, model.EventGameWon, model.GameWonPayload{RoomCode: code})
	s.Equal(model.CodeGameNotStarted, s.lastError(a).Code)
}

func (s *DispatcherSuite) TestUnknownEvent() {
	a := s.connect()
	s.send(a, "dance", nil)
	s.Equal(model.CodeInvalidEvent, s.lastError(a).Code)
}

func (s *DispatcherSuite) TestMalformedPayload() {
	a := s.connect()
	s.send(a, model.EventJoinRoom, map[string]int{"code": 1})
	s.Equal(model.CodeInvalidEvent, s.lastError(a).Code)
}

// Capacity

func (s *DispatcherSuite) TestJoinRoom_CapacityUnderContention() {
	a := s.connect()
	code := s.createRoom(a, 3)

	joiners := make([]*client, 10)
	for i := range joiners {
		joiners[i] = s.connect()
	}

	var wg sync.WaitGroup
	for _, c := range joiners {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			s.send(c, model.EventJoinRoom, code)
		}(c)
	}
	wg.Wait()

	admitted, full := 0, 0
	for _, c := range joiners {
		if c.conn.Count(model.EventRoomJoined) == 1 {
			admitted++
		}
		var reason model.ErrorPayload
		if c.conn.Last(model.EventError, &reason) {
			s.Equal(model.CodeRoomFull, reason.Code)
			full++
		}
	}
	s.Equal(2, admitted)
	s.Equal(8, full)

	active, err := s.ledger.CountActive(s.ctx, code)
	s.Require().NoError(err)
	s.Equal(3, active)
	s.assertSingleAdmin(code)
}

// Sessions

func (s *DispatcherSuite) TestReconnect_EvictsPreviousSession() {
	old := s.connectAs("", model.DeviceDescriptor{OS: "iOS", Type: "mobile", Browser: "Safari"})
	code := s.createRoom(old, 4)

	fresh := s.connectAs(old.session.PlayerID, model.DeviceDescriptor{OS: "Windows", Type: "desktop", Browser: "Edge"})
	s.NotEqual(old.session.DeviceID, fresh.session.DeviceID)

	reason := s.lastError(old)
	s.Equal(model.CodeSessionReplaced, reason.Code)
	s.Equal("Logged in from another device", reason.Message)
	s.True(old.conn.Closed())

	s.False(s.registry.IsAuthoritative(old.session.PlayerID, old.session.ID))
	s.True(s.registry.IsAuthoritative(fresh.session.PlayerID, fresh.session.ID))

	devices, err := s.storage.GetDevices(s.ctx, old.session.PlayerID)
	s.Require().NoError(err)
	for _, d := range devices {
		s.Equal(d.ID == fresh.session.DeviceID, d.IsActive, "device %s", d.ID)
	}

	// the new session resumes the room once the old transport is gone
	s.dispatcher.Disconnect(s.ctx, old.session)
	s.Contains(s.hubs.RoomMembers(code), fresh.session.ID)
	s.NotContains(s.hubs.RoomMembers(code), old.session.ID)
	s.True(s.membership(code, fresh).IsActive)
}

func (s *DispatcherSuite) TestEvictedSession_HasNoEffect() {
	old := s.connect()
	code := s.createRoom(old, 4)
	fresh := s.connectAs(old.session.PlayerID, model.DeviceDescriptor{})

	s.send(old, model.EventSendMessage, model.SendMessagePayload{RoomID: code, Message: "ghost"})
	s.send(old, model.EventLeaveRoom, code)
	s.send(old, model.EventCreateRoom, model.RoomConfig{Name: "Ghost", MaxPlayers: 4})

	messages, err := s.chat.List(s.ctx, code)
	s.Require().NoError(err)
	s.Empty(messages)
	s.True(s.membership(code, fresh).IsActive)

	count, err := s.storage.CountRooms(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)

	// its transport closing afterwards must not take the player offline
	s.dispatcher.Disconnect(s.ctx, old.session)
	s.True(s.registry.IsOnline(fresh.session.PlayerID))
	s.True(s.membership(code, fresh).IsActive)
}

func (s *DispatcherSuite) TestEvictedSession_ReservesNoCode() {
	old := s.connect()
	s.connectAs(old.session.PlayerID, model.DeviceDescriptor{})

	s.random.QueueString("GHOST1")
	s.send(old, model.EventCreateRoom, model.RoomConfig{Name: "Ghost", MaxPlayers: 4})
	s.Equal(0, old.conn.Count(model.EventRoomCreated))

	ok, err := s.storage.ReserveRoomCode(s.ctx, "GHOST1")
	s.Require().NoError(err)
	s.True(ok, "an evicted session reserved a room code")
}

func (s *DispatcherSuite) TestEviction_RacingEventsNeverApplyAfterTakeover() {
	old := s.connect()
	code := s.createRoom(old, 4)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 100 {
			s.send(old, model.EventSendMessage, model.SendMessagePayload{RoomID: code, Message: fmt.Sprint(i)})
		}
	}()
	fresh := s.connectAs(old.session.PlayerID, model.DeviceDescriptor{})
	before, err := s.chat.List(s.ctx, code)
	s.Require().NoError(err)
	wg.Wait()

	after, err := s.chat.List(s.ctx, code)
	s.Require().NoError(err)
	s.Equal(len(before), len(after), "messages applied after the takeover completed")
	s.True(s.registry.IsAuthoritative(fresh.session.PlayerID, fresh.session.ID))
}

func (s *DispatcherSuite) TestDisconnect_DegradesMemberships() {
	a := s.connect()
	code := s.createRoom(a, 4)
	b := s.connect()
	s.join(b, code)

	s.dispatcher.Disconnect(s.ctx, b.session)

	s.False(s.membership(code, b).IsActive)
	s.False(s.registry.IsOnline(b.session.PlayerID))
	player, err := s.storage.GetPlayer(s.ctx, b.session.PlayerID)
	s.Require().NoError(err)
	s.False(player.IsActive)
	devices, err := s.storage.GetDevices(s.ctx, b.session.PlayerID)
	s.Require().NoError(err)
	for _, d := range devices {
		s.False(d.IsActive)
	}

	s.waitCount(a, model.EventPlayerDisconnect, 1)
	var gone model.PlayerDisconnectPayload
	s.Require().True(a.conn.Last(model.EventPlayerDisconnect, &gone))
	s.Equal(b.session.PlayerID, gone.PlayerID)
	s.waitCount(a, model.EventPlayerLeft, 1)
}

func (s *DispatcherSuite) TestDisconnect_AdminPromotesEarliestMember() {
	a := s.connect()
	code := s.createRoom(a, 4)
	s.clock.Advance(time.Second)
	b := s.connect()
	s.join(b, code)
	s.clock.Advance(time.Second)
	c := s.connect()
	s.join(c, code)

	s.dispatcher.Disconnect(s.ctx, a.session)

	for _, member := range []*client{b, c} {
		s.waitCount(member, model.EventAdminChanged, 1)
		var changed model.AdminChangedPayload
		s.Require().True(member.conn.Last(model.EventAdminChanged, &changed))
		s.Equal(b.session.PlayerID, changed.AdminID)
	}
	s.assertSingleAdmin(code)

	// the old admin comes back as a regular member
	back := s.connectAs(a.session.PlayerID, model.DeviceDescriptor{})
	s.join(back, code)
	s.False(s.membership(code, back).IsAdmin)
	s.assertSingleAdmin(code)
}

func (s *DispatcherSuite) TestDisconnect_RejoinAfterDegrade() {
	a := s.connect()
	code := s.createRoom(a, 2)
	b := s.connect()
	s.join(b, code)
	s.dispatcher.Disconnect(s.ctx, b.session)

	back := s.connectAs(b.session.PlayerID, model.DeviceDescriptor{})
	s.join(back, code)
	s.True(s.membership(code, back).IsActive)

	active, err := s.ledger.CountActive(s.ctx, code)
	s.Require().NoError(err)
	s.Equal(2, active)
}
