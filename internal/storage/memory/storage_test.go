package memory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/scanogram/internal/model"
	"github.com/mcoot/scanogram/internal/storage"
	"github.com/mcoot/scanogram/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
}

func TestStorageSuite(t *testing.T) {
	s := new(StorageSuite)
	s.NewStorage = func() storage.Storage { return New() }
	suite.Run(t, s)
}

func (s *StorageSuite) TestReturnedMembershipsAreCopies() {
	store := s.Storage.(*Storage)
	s.Require().NoError(store.SaveMembership(s.Ctx, &model.Membership{RoomID: "ROOM01", PlayerID: "p1", IsActive: true}))

	all, err := store.GetMembershipsForRoom(s.Ctx, "ROOM01")
	s.Require().NoError(err)
	all[0].IsActive = false

	got, err := store.GetMembership(s.Ctx, "ROOM01", "p1")
	s.Require().NoError(err)
	s.True(got.IsActive)
}
