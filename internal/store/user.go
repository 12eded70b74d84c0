package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/archivekeep/chathist/internal/apperr"
	"github.com/archivekeep/chathist/internal/model"
)

// Users returns every user in the dataset, self first, the rest sorted by
// id.
func (s *Store) Users(dsUUID uuid.UUID) ([]model.User, error) {
	raw, err := dsUUID.MarshalBinary()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	rows, err := s.db.Query(`
		SELECT id, first_name, last_name, username, phone_numbers, is_myself
		FROM user WHERE ds_uuid = ?
		ORDER BY is_myself DESC, id ASC`, raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.IO, err, "query users")
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u := model.User{DatasetUUID: dsUUID}
		var isMyself int
		var firstName, lastName, username, phone sql.NullString
		if err := rows.Scan(&u.ID, &firstName, &lastName, &username, &phone, &isMyself); err != nil {
			return nil, apperr.Wrap(apperr.IO, err, "scan user row")
		}
		u.FirstName = nullableToPtr(firstName)
		u.LastName = nullableToPtr(lastName)
		u.Username = nullableToPtr(username)
		u.PhoneNumber = nullableToPtr(phone)
		u.IsMyself = isMyself != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

// InsertUser inserts a new user row.
func (s *Store) InsertUser(u model.User) error {
	raw, err := u.DatasetUUID.MarshalBinary()
	if err != nil {
		return apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}
	_, err = s.db.Exec(`
		INSERT INTO user (ds_uuid, id, first_name, last_name, username, phone_numbers, is_myself)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		raw, u.ID, ptrToNullable(u.FirstName), ptrToNullable(u.LastName),
		ptrToNullable(u.Username), ptrToNullable(u.PhoneNumber), boolToInt(u.IsMyself))
	if err != nil {
		if isUniqueConstraintErr(err) {
			return apperr.Wrap(apperr.Conflict, err, "user %d already exists in dataset %s", u.ID, u.DatasetUUID)
		}
		return apperr.Wrap(apperr.IO, err, "insert user %d", u.ID)
	}
	return nil
}

// UpdateUser updates a user's profile fields and applies the two mandated
// side effects: refreshing the name of every Personal chat whose other
// member is this user, and rewriting this user's pretty name everywhere it
// appears in a service message's members list.
func (s *Store) UpdateUser(u model.User) error {
	raw, err := u.DatasetUUID.MarshalBinary()
	if err != nil {
		return apperr.Wrap(apperr.InputShape, err, "marshal dataset uuid")
	}

	return s.withTx(func(tx *sql.Tx) error {
		var oldFirst, oldLast, oldUsername, oldPhone sql.NullString
		row := tx.QueryRow(`SELECT first_name, last_name, username, phone_numbers FROM user WHERE ds_uuid = ? AND id = ?`, raw, u.ID)
		if err := row.Scan(&oldFirst, &oldLast, &oldUsername, &oldPhone); err != nil {
			if err == sql.ErrNoRows {
				return apperr.New(apperr.NotFound, "user %d not found in dataset %s", u.ID, u.DatasetUUID)
			}
			return apperr.Wrap(apperr.IO, err, "read user %d before update", u.ID)
		}
		oldName := model.PrettyNameOf(nullableToPtr(oldFirst), nullableToPtr(oldLast), nullableToPtr(oldUsername), nullableToPtr(oldPhone))
		newName := u.PrettyName()

		res, err := tx.Exec(`
			UPDATE user SET first_name=?, last_name=?, username=?, phone_numbers=?, is_myself=?
			WHERE ds_uuid=? AND id=?`,
			ptrToNullable(u.FirstName), ptrToNullable(u.LastName), ptrToNullable(u.Username), ptrToNullable(u.PhoneNumber),
			boolToInt(u.IsMyself), raw, u.ID)
		if err != nil {
			return apperr.Wrap(apperr.IO, err, "update user %d", u.ID)
		}
		if err := requireAffected(res, apperr.NotFound, "user %d not found", u.ID); err != nil {
			return err
		}

		if oldName == newName {
			return nil
		}

		if _, err := tx.Exec(`
			UPDATE chat SET name = ?
			WHERE ds_uuid = ? AND type = 'personal' AND id IN (
				SELECT chat_id FROM chat_member WHERE ds_uuid = ? AND user_id = ? AND "order" = 1
			)`, newName, raw, raw, u.ID); err != nil {
			return apperr.Wrap(apperr.IO, err, "refresh personal chat names for user %d", u.ID)
		}

		rows, err := tx.Query(`
			SELECT mc.id, mc.members
			FROM message_content mc
			JOIN message m ON m.internal_id = mc.message_internal_id
			JOIN chat_member cm ON cm.ds_uuid = m.ds_uuid AND cm.chat_id = m.chat_id AND cm.user_id = ?
			WHERE m.ds_uuid = ? AND mc.members IS NOT NULL`, u.ID, raw)
		if err != nil {
			return apperr.Wrap(apperr.IO, err, "scan member-list content for user %d", u.ID)
		}
		type rewrite struct {
			id      int64
			members string
		}
		var rewrites []rewrite
		for rows.Next() {
			var r rewrite
			var members sql.NullString
			if err := rows.Scan(&r.id, &members); err != nil {
				rows.Close()
				return apperr.Wrap(apperr.IO, err, "scan message_content row")
			}
			names := decodeMembers(members.String)
			changed := false
			for i, n := range names {
				if n == oldName {
					names[i] = newName
					changed = true
				}
			}
			if changed {
				r.members = encodeMembers(names)
				rewrites = append(rewrites, r)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return apperr.Wrap(apperr.IO, err, "iterate member-list content for user %d", u.ID)
		}

		for _, r := range rewrites {
			if _, err := tx.Exec(`UPDATE message_content SET members = ? WHERE id = ?`, r.members, r.id); err != nil {
				return apperr.Wrap(apperr.IO, err, "rewrite members for content row %d", r.id)
			}
		}
		return nil
	})
}

func nullableToPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func ptrToNullable(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
