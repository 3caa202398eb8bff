package directory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/scanogram/internal/dependencies/mocks"
	"github.com/mcoot/scanogram/internal/dependencies/random"
	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/storage/memory"
)

type DirectorySuite struct {
	suite.Suite
	storage   *memory.Storage
	clock     *mocks.MockClock
	random    *mocks.MockRandom
	directory *Directory
	ctx       context.Context
}

func TestDirectorySuite(t *testing.T) {
	suite.Run(t, new(DirectorySuite))
}

func (s *DirectorySuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.directory = New(s.storage, s.clock, s.random, Config{MaxPlayers: 8})
	s.ctx = context.Background()
}

// createRoom allocates a code and saves a room under it, the way the room
// handlers do
func createRoom(ctx context.Context, d *Directory, cfg model.RoomConfig, admin model.PlayerID) (*model.Room, error) {
	code, err := d.AllocateCode(ctx)
	if err != nil {
		return nil, err
	}
	return d.Create(ctx, code, cfg, admin)
}

// Create tests

func (s *DirectorySuite) TestCreateRoom() {
	s.random.QueueString("ABC123")

	room, err := createRoom(s.ctx, s.directory, model.RoomConfig{Name: "  Alpha ", MaxPlayers: 4}, "p1")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("ABC123"), room.ID)
	s.Equal("Alpha", room.Name)
	s.Equal(4, room.MaxPlayers)
	s.Equal(model.PlayerID("p1"), room.AdminID)
	s.False(room.IsGameStarted)
	s.Equal(s.clock.Now(), room.CreatedAt)

	stored, err := s.directory.Get(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Equal("Alpha", stored.Name)
}

func (s *DirectorySuite) TestCreateRoom_RetriesOnCollision() {
	s.random.QueueString("AAAAAA", "AAAAAA", "BBBBBB")

	first, err := createRoom(s.ctx, s.directory, model.RoomConfig{Name: "One", MaxPlayers: 2}, "p1")
	s.Require().NoError(err)
	second, err := createRoom(s.ctx, s.directory, model.RoomConfig{Name: "Two", MaxPlayers: 2}, "p2")
	s.Require().NoError(err)

	s.Equal(model.RoomCode("AAAAAA"), first.ID)
	s.Equal(model.RoomCode("BBBBBB"), second.ID)
}

func (s *DirectorySuite) TestAllocateCode_GivesUpAfterRepeatedCollisions() {
	ok, err := s.storage.ReserveRoomCode(s.ctx, "ZZZZZZ")
	s.Require().NoError(err)
	s.Require().True(ok)

	for range maxCodeAttempts {
		s.random.QueueString("ZZZZZZ")
	}
	_, err = s.directory.AllocateCode(s.ctx)
	s.ErrorIs(err, model.ErrCodeSpaceExhausted)
}

func (s *DirectorySuite) TestCreateRoom_InvalidConfig() {
	tests := []struct {
		name string
		cfg  model.RoomConfig
	}{
		{name: "too few players", cfg: model.RoomConfig{Name: "Alpha", MaxPlayers: 1}},
		{name: "zero players", cfg: model.RoomConfig{Name: "Alpha"}},
		{name: "too many players", cfg: model.RoomConfig{Name: "Alpha", MaxPlayers: 9}},
		{name: "blank name", cfg: model.RoomConfig{Name: "   ", MaxPlayers: 4}},
		{name: "long name", cfg: model.RoomConfig{Name: strings.Repeat("x", 65), MaxPlayers: 4}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.directory.Create(s.ctx, "ROOM01", tt.cfg, "p1")
			s.ErrorIs(err, model.ErrInvalidConfig)
		})
	}

	n, err := s.storage.CountRooms(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *DirectorySuite) TestCodesAreUniqueUnderConcurrency() {
	directory := New(s.storage, s.clock, random.New(), Config{})

	const rooms = 10000
	codes := make([]model.RoomCode, rooms)
	errs := make([]error, rooms)

	var wg sync.WaitGroup
	for i := range rooms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := createRoom(s.ctx, directory, model.RoomConfig{Name: "Room", MaxPlayers: 2}, "p1")
			errs[i] = err
			if err == nil {
				codes[i] = room.ID
			}
		}()
	}
	wg.Wait()

	seen := make(map[model.RoomCode]bool, rooms)
	for i := range rooms {
		s.Require().NoError(errs[i])
		s.Len(string(codes[i]), CodeLength)
		s.False(seen[codes[i]], "duplicate code %s", codes[i])
		seen[codes[i]] = true
	}

	n, err := s.storage.CountRooms(s.ctx)
	s.Require().NoError(err)
	s.Equal(rooms, n)
}

func (s *DirectorySuite) TestCodesUseAlphabet() {
	directory := New(s.storage, s.clock, random.New(), Config{})
	for range 50 {
		code, err := directory.AllocateCode(s.ctx)
		s.Require().NoError(err)
		for _, c := range code {
			s.Contains(CodeAlphabet, string(c))
		}
	}
}

func (s *DirectorySuite) TestNormalizeCode() {
	s.Equal(model.RoomCode("ABC123"), NormalizeCode(" abc123\n"))
}

// StartGame tests

func (s *DirectorySuite) createRoom() *model.Room {
	s.random.QueueString("ROOM01")
	room, err := createRoom(s.ctx, s.directory, model.RoomConfig{Name: "Alpha", MaxPlayers: 4}, "admin")
	s.Require().NoError(err)
	return room
}

func (s *DirectorySuite) TestStartGame() {
	s.createRoom()

	room, err := s.directory.StartGame(s.ctx, "ROOM01", "admin")
	s.Require().NoError(err)
	s.True(room.IsGameStarted)

	_, err = s.directory.StartGame(s.ctx, "ROOM01", "admin")
	s.ErrorIs(err, model.ErrGameAlreadyStarted)
}

func (s *DirectorySuite) TestStartGame_NotAdmin() {
	s.createRoom()

	_, err := s.directory.StartGame(s.ctx, "ROOM01", "someone-else")
	s.ErrorIs(err, model.ErrNotAdmin)

	room, err := s.directory.Get(s.ctx, "ROOM01")
	s.Require().NoError(err)
	s.False(room.IsGameStarted)
}

func (s *DirectorySuite) TestStartGame_RoomNotFound() {
	_, err := s.directory.StartGame(s.ctx, "NOPE00", "admin")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *DirectorySuite) TestSetAdmin() {
	s.createRoom()
	s.Require().NoError(s.directory.SetAdmin(s.ctx, "ROOM01", "p2"))

	room, err := s.directory.Get(s.ctx, "ROOM01")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p2"), room.AdminID)
}

// RecordWinner tests

func (s *DirectorySuite) TestRecordWinner_FirstClaimWins() {
	s.createRoom()
	_, err := s.directory.StartGame(s.ctx, "ROOM01", "admin")
	s.Require().NoError(err)

	room, recorded, err := s.directory.RecordWinner(s.ctx, "ROOM01", "p2")
	s.Require().NoError(err)
	s.True(recorded)
	s.Equal(model.PlayerID("p2"), room.WinnerID)

	room, recorded, err = s.directory.RecordWinner(s.ctx, "ROOM01", "p3")
	s.Require().NoError(err)
	s.False(recorded)
	s.Equal(model.PlayerID("p2"), room.WinnerID)
}

func (s *DirectorySuite) TestRecordWinner_GameNotStarted() {
	s.createRoom()
	_, _, err := s.directory.RecordWinner(s.ctx, "ROOM01", "p2")
	s.ErrorIs(err, model.ErrGameNotStarted)
}
