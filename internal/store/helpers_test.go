package store

import (
	"testing"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/model"
)

func testDataset(t *testing.T, alias string) model.Dataset {
	t.Helper()
	return model.Dataset{UUID: uuid.New(), Alias: alias, SourceType: "telegram"}
}

func testUser(dsUUID uuid.UUID, id int64, isMyself bool) model.User {
	first := "Ada"
	last := "Lovelace"
	return model.User{
		DatasetUUID: dsUUID,
		ID:          id,
		FirstName:   &first,
		LastName:    &last,
		IsMyself:    isMyself,
	}
}

func strp(s string) *string { return &s }
