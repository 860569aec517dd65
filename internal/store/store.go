// Package store holds the durable queries the relay needs: chat memberships
// for room setup, profile lookups for relayed payloads, presence columns and
// message receipts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// lastSeenLayout matches SQLite's datetime('now') text format.
const lastSeenLayout = "2006-01-02 15:04:05"

// SQLStore implements the relay query interfaces over a SQLite database.
type SQLStore struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// ChatIDsForUser returns every chat the user is a member of, in ascending
// order.
func (s *SQLStore) ChatIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id FROM chat_members WHERE user_id = ? ORDER BY chat_id", userID)
	if err != nil {
		return nil, fmt.Errorf("query chat memberships: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat membership: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsMember reports whether the user belongs to the chat.
func (s *SQLStore) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_members WHERE chat_id = ? AND user_id = ?", chatID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return n > 0, nil
}

// UserSummary loads the public profile subset of a user.
func (s *SQLStore) UserSummary(ctx context.Context, userID int64) (wire.UserSummary, error) {
	var (
		out wire.UserSummary
		pic sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, display_name, profile_pic FROM users WHERE id = ?", userID,
	).Scan(&out.ID, &out.DisplayName, &pic)
	if errors.Is(err, sql.ErrNoRows) {
		return wire.UserSummary{}, ErrNotFound
	}
	if err != nil {
		return wire.UserSummary{}, fmt.Errorf("query user %d: %w", userID, err)
	}
	if pic.Valid {
		out.ProfilePic = &pic.String
	}
	return out, nil
}

// DisplayName returns the user's display name.
func (s *SQLStore) DisplayName(ctx context.Context, userID int64) (string, error) {
	u, err := s.UserSummary(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.DisplayName, nil
}

// SetOnline flags the user as online.
func (s *SQLStore) SetOnline(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET is_online = 1 WHERE id = ?", userID); err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

// SetOffline clears the online flag and records the last-seen time.
func (s *SQLStore) SetOffline(ctx context.Context, userID int64, lastSeen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_online = 0, last_seen = ? WHERE id = ?",
		lastSeen.UTC().Format(lastSeenLayout), userID)
	if err != nil {
		return fmt.Errorf("set offline: %w", err)
	}
	return nil
}

// ResetOnline clears every online flag. Handles do not survive a restart.
func (s *SQLStore) ResetOnline(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET is_online = 0 WHERE is_online = 1")
	if err != nil {
		return 0, fmt.Errorf("reset online flags: %w", err)
	}
	return res.RowsAffected()
}

// LastSeen returns the recorded last-seen time and online flag.
func (s *SQLStore) LastSeen(ctx context.Context, userID int64) (time.Time, bool, error) {
	var (
		raw    sql.NullString
		online int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT last_seen, is_online FROM users WHERE id = ?", userID,
	).Scan(&raw, &online)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, ErrNotFound
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last seen: %w", err)
	}
	if !raw.Valid {
		return time.Time{}, online == 1, nil
	}
	t, err := time.Parse(lastSeenLayout, raw.String)
	if err != nil {
		return time.Time{}, online == 1, fmt.Errorf("parse last seen %q: %w", raw.String, err)
	}
	return t, online == 1, nil
}

// MarkDelivered adds userID to the message's delivered_to set. It reports
// whether the message exists.
func (s *SQLStore) MarkDelivered(ctx context.Context, messageID, userID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var raw sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT delivered_to FROM messages WHERE id = ?", messageID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query message %d: %w", messageID, err)
	}

	ids, changed, err := addID(raw.String, userID)
	if err != nil {
		return true, fmt.Errorf("message %d delivered_to: %w", messageID, err)
	}
	if changed {
		if _, err := tx.ExecContext(ctx, "UPDATE messages SET delivered_to = ? WHERE id = ?", ids, messageID); err != nil {
			return true, fmt.Errorf("update delivered_to: %w", err)
		}
	}
	return true, tx.Commit()
}

// MarkChatRead marks every message in the chat not sent by userID as read by
// them and resets their unread counter.
func (s *SQLStore) MarkChatRead(ctx context.Context, chatID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT id, read_by FROM messages WHERE chat_id = ? AND sender_id != ?", chatID, userID)
	if err != nil {
		return fmt.Errorf("query unread: %w", err)
	}
	type pending struct {
		id     int64
		readBy string
	}
	var updates []pending
	for rows.Next() {
		var (
			id  int64
			raw sql.NullString
		)
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("scan message: %w", err)
		}
		next, changed, err := addID(raw.String, userID)
		if err != nil {
			rows.Close()
			return fmt.Errorf("message %d read_by: %w", id, err)
		}
		if changed {
			updates = append(updates, pending{id: id, readBy: next})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, "UPDATE messages SET read_by = ? WHERE id = ?", u.readBy, u.id); err != nil {
			return fmt.Errorf("update read_by: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE chat_members SET unread_count = 0 WHERE chat_id = ? AND user_id = ?", chatID, userID); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return tx.Commit()
}

// addID appends id to a JSON array of ids unless already present.
func addID(raw string, id int64) (string, bool, error) {
	var ids []int64
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return raw, false, err
		}
	}
	if slices.Contains(ids, id) {
		return raw, false, nil
	}
	ids = append(ids, id)
	out, err := json.Marshal(ids)
	if err != nil {
		return raw, false, err
	}
	return string(out), true, nil
}
