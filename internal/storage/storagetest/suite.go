// Package storagetest holds the behaviour every storage implementation must
// share. Implementation packages embed Suite and supply a constructor.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/storage"
)

// Suite runs the storage contract against the Storage returned by NewStorage
type Suite struct {
	suite.Suite

	// NewStorage is called before every test
	NewStorage func() storage.Storage

	Storage storage.Storage
	Ctx     context.Context
	Now     time.Time
}

func (s *Suite) SetupTest() {
	s.Storage = s.NewStorage()
	s.Ctx = context.Background()
	s.Now = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
}

// Player tests

func (s *Suite) TestSaveAndGetPlayer() {
	player := &model.Player{ID: "player-1", Name: "Alice", CreatedAt: s.Now, LastSeenAt: s.Now, IsActive: true}
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, player))

	got, err := s.Storage.GetPlayer(s.Ctx, "player-1")
	s.Require().NoError(err)
	s.Equal("Alice", got.Name)
	s.True(got.IsActive)
	s.True(s.Now.Equal(got.CreatedAt))
}

func (s *Suite) TestGetPlayerNotFound() {
	_, err := s.Storage.GetPlayer(s.Ctx, "nonexistent")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestReturnedPlayerIsACopy() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, &model.Player{ID: "player-1", Name: "Alice"}))

	got, err := s.Storage.GetPlayer(s.Ctx, "player-1")
	s.Require().NoError(err)
	got.Name = "Mallory"

	again, err := s.Storage.GetPlayer(s.Ctx, "player-1")
	s.Require().NoError(err)
	s.Equal("Alice", again.Name)
}

func (s *Suite) TestCountPlayers() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, &model.Player{ID: "p1"}))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, &model.Player{ID: "p2"}))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, &model.Player{ID: "p1", Name: "updated"}))

	n, err := s.Storage.CountPlayers(s.Ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}

// Device tests

func (s *Suite) TestDevicesOrderedByCreationAndUpdatedInPlace() {
	second := &model.Device{ID: "d2", PlayerID: "p1", OS: "ios", CreatedAt: s.Now.Add(time.Minute)}
	first := &model.Device{ID: "d1", PlayerID: "p1", OS: "linux", CreatedAt: s.Now}
	s.Require().NoError(s.Storage.SaveDevice(s.Ctx, second))
	s.Require().NoError(s.Storage.SaveDevice(s.Ctx, first))

	first.IsActive = true
	s.Require().NoError(s.Storage.SaveDevice(s.Ctx, first))

	devices, err := s.Storage.GetDevices(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Require().Len(devices, 2)
	s.Equal(model.DeviceID("d1"), devices[0].ID)
	s.True(devices[0].IsActive)
	s.Equal(model.DeviceID("d2"), devices[1].ID)
}

func (s *Suite) TestGetDevicesEmpty() {
	devices, err := s.Storage.GetDevices(s.Ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(devices)
}

// Room tests

func (s *Suite) TestReserveRoomCode() {
	ok, err := s.Storage.ReserveRoomCode(s.Ctx, "ABC123")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.Storage.ReserveRoomCode(s.Ctx, "ABC123")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *Suite) TestReserveRoomCodeConcurrentSingleWinner() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Storage.ReserveRoomCode(s.Ctx, "RACE01")
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, wins)
}

func (s *Suite) TestSaveRoomClaimsItsCode() {
	room := &model.Room{ID: "ROOM01", Name: "Alpha", MaxPlayers: 4, AdminID: "p1", CreatedAt: s.Now}
	s.Require().NoError(s.Storage.SaveRoom(s.Ctx, room))

	ok, err := s.Storage.ReserveRoomCode(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.Storage.GetRoom(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.Equal("Alpha", got.Name)
	s.Equal(4, got.MaxPlayers)
	s.Equal(model.PlayerID("p1"), got.AdminID)
}

func (s *Suite) TestGetRoomNotFound() {
	_, err := s.Storage.GetRoom(s.Ctx, "NOPE00")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestCountRoomsIgnoresBareReservations() {
	_, err := s.Storage.ReserveRoomCode(s.Ctx, "RESV01")
	s.Require().NoError(err)
	s.Require().NoError(s.Storage.SaveRoom(s.Ctx, &model.Room{ID: "ROOM01"}))
	s.Require().NoError(s.Storage.SaveRoom(s.Ctx, &model.Room{ID: "ROOM02"}))

	n, err := s.Storage.CountRooms(s.Ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}

// Membership tests

func (s *Suite) TestMembershipRoundTripAndUpdate() {
	m := &model.Membership{RoomID: "ROOM01", PlayerID: "p1", PlayerName: "Alice", IsActive: true, IsAdmin: true, JoinedAt: s.Now}
	s.Require().NoError(s.Storage.SaveMembership(s.Ctx, m))

	m.IsActive = false
	s.Require().NoError(s.Storage.SaveMembership(s.Ctx, m))

	got, err := s.Storage.GetMembership(s.Ctx, "ROOM01", "p1")
	s.Require().NoError(err)
	s.False(got.IsActive)
	s.True(got.IsAdmin)

	all, err := s.Storage.GetMembershipsForRoom(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *Suite) TestGetMembershipNotFound() {
	_, err := s.Storage.GetMembership(s.Ctx, "ROOM01", "p1")
	s.ErrorIs(err, model.ErrMembershipNotFound)
}

func (s *Suite) TestMembershipsForRoomInJoinOrder() {
	for i := 0; i < 5; i++ {
		m := &model.Membership{
			RoomID:   "ROOM01",
			PlayerID: model.PlayerID(fmt.Sprintf("p%d", 5-i)),
			JoinedAt: s.Now.Add(time.Duration(i) * time.Second),
			IsActive: true,
		}
		s.Require().NoError(s.Storage.SaveMembership(s.Ctx, m))
	}

	all, err := s.Storage.GetMembershipsForRoom(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.Require().Len(all, 5)
	for i, m := range all {
		s.Equal(model.PlayerID(fmt.Sprintf("p%d", 5-i)), m.PlayerID)
	}
}

func (s *Suite) TestMembershipsForPlayer() {
	s.Require().NoError(s.Storage.SaveMembership(s.Ctx, &model.Membership{RoomID: "ROOM02", PlayerID: "p1", JoinedAt: s.Now}))
	s.Require().NoError(s.Storage.SaveMembership(s.Ctx, &model.Membership{RoomID: "ROOM01", PlayerID: "p1", JoinedAt: s.Now.Add(time.Second)}))
	s.Require().NoError(s.Storage.SaveMembership(s.Ctx, &model.Membership{RoomID: "ROOM01", PlayerID: "p2", JoinedAt: s.Now}))

	mine, err := s.Storage.GetMembershipsForPlayer(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal(model.RoomCode("ROOM02"), mine[0].RoomID)
	s.Equal(model.RoomCode("ROOM01"), mine[1].RoomID)

	none, err := s.Storage.GetMembershipsForPlayer(s.Ctx, "p3")
	s.Require().NoError(err)
	s.Empty(none)
}

// Message tests

func (s *Suite) TestMessagesInArrivalOrder() {
	for i := 0; i < 3; i++ {
		msg := &model.Message{
			ID:        fmt.Sprintf("m%d", i),
			RoomID:    "ROOM01",
			PlayerID:  "p1",
			Text:      fmt.Sprintf("hello %d", i),
			CreatedAt: s.Now,
		}
		s.Require().NoError(s.Storage.AppendMessage(s.Ctx, msg))
	}
	s.Require().NoError(s.Storage.AppendMessage(s.Ctx, &model.Message{ID: "other", RoomID: "ROOM02"}))

	messages, err := s.Storage.GetMessagesForRoom(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.Require().Len(messages, 3)
	for i, m := range messages {
		s.Equal(fmt.Sprintf("hello %d", i), m.Text)
	}
}

func (s *Suite) TestMessagesEmptyRoom() {
	messages, err := s.Storage.GetMessagesForRoom(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	s.Empty(messages)
}
