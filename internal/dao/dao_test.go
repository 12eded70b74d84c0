package dao_test

import (
	"github.com/archivekeep/chathist/internal/dao"
	"github.com/archivekeep/chathist/internal/memdao"
	"github.com/archivekeep/chathist/internal/store"
)

// Compile-time assertions that both DAO implementations satisfy the shared
// read contract.
var (
	_ dao.ReadDAO = (*store.Store)(nil)
	_ dao.ReadDAO = (*memdao.Dao)(nil)
)
