package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/model"
)

// Datasets returns every dataset in the store, in no particular order.
func (s *Store) Datasets() ([]model.Dataset, error) {
	rows, err := s.db.Query(`SELECT uuid, alias, source_type FROM dataset`)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, err, "query datasets")
	}
	defer rows.Close()

	var out []model.Dataset
	for rows.Next() {
		var raw []byte
		var d model.Dataset
		if err := rows.Scan(&raw, &d.Alias, &d.SourceType); err != nil {
			return nil, apperr.Wrap(apperr.IO, err, "scan dataset row")
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.Invariant, err, "decode dataset uuid")
		}
		d.UUID = id
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertDataset inserts a new dataset row. Fails if the uuid already exists.
func (s *Store) InsertDataset(d model.Dataset) error {
	raw, err := d.UUID.MarshalBinary()
	if err != nil {
		return apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	_, err = s.db.Exec(`INSERT INTO dataset (uuid, alias, source_type) VALUES (?, ?, ?)`,
		raw, d.Alias, d.SourceType)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return apperr.Wrap(apperr.Conflict, err, "dataset %s already exists", d.UUID)
		}
		return apperr.Wrap(apperr.IO, err, "insert dataset %s", d.UUID)
	}
	return nil
}

// UpdateDataset renames a dataset. It is the only mutable field.
func (s *Store) UpdateDataset(dsUUID uuid.UUID, newAlias string) error {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	res, err := s.db.Exec(`UPDATE dataset SET alias = ? WHERE uuid = ?`, newAlias, raw)
	if err != nil {
		return apperr.Wrap(apperr.IO, err, "update dataset %s", dsUUID)
	}
	return requireAffected(res, apperr.NotFound, "dataset %s not found", dsUUID)
}

// DeleteDataset removes a dataset and all of its users/chats/messages
// (cascading via foreign keys), and moves its attachment tree under a
// timestamped backup directory in attachmentsRoot, if attachmentsRoot is
// non-empty and the tree exists.
func (s *Store) DeleteDataset(dsUUID uuid.UUID, attachmentsRoot string, moveToBackup func(root string) error) error {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	res, err := s.db.Exec(`DELETE FROM dataset WHERE uuid = ?`, raw)
	if err != nil {
		return apperr.Wrap(apperr.IO, err, "delete dataset %s", dsUUID)
	}
	if err := requireAffected(res, apperr.NotFound, "dataset %s not found", dsUUID); err != nil {
		return err
	}
	if attachmentsRoot != "" && moveToBackup != nil {
		if err := moveToBackup(attachmentsRoot); err != nil {
			return apperr.Wrap(apperr.IO, err, "move dataset attachments to backup")
		}
	}
	return nil
}

func requireAffected(res sql.Result, kind error, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.IO, err, "check rows affected")
	}
	if n == 0 {
		return apperr.New(kind, format, args...)
	}
	return nil
}
