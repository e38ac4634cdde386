package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// GetThread returns the cached entry for a thread, or nil if absent.
func (db *DB) GetThread(threadID int64) (*CachedThread, error) {
	var (
		t       CachedThread
		rawMsgs string
		fetched int64
	)
	err := db.QueryRow(`
		SELECT thread_id, contact_name, contact_phone, messages, last_message_id, fetched_at
		FROM thread_cache
		WHERE thread_id = ?`, threadID).
		Scan(&t.ThreadID, &t.ContactName, &t.ContactPhone, &rawMsgs, &t.LastMessageID, &fetched)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rawMsgs), &t.Messages); err != nil {
		return nil, fmt.Errorf("decode cached messages for thread %d: %w", threadID, err)
	}
	t.FetchedAt = time.UnixMilli(fetched)
	return &t, nil
}

// MergeThread merges new messages into a thread's cache entry. Messages
// already present (by id) are skipped, the window is capped at maxMessages
// keeping the newest, and last_message_id only ever advances. Calling it
// twice with the same batch is a no-op the second time.
func (db *DB) MergeThread(threadID int64, contactName, contactPhone string, msgs []Message, lastMessageID int64, maxMessages int, now time.Time) (*CachedThread, error) {
	existing, err := db.GetThread(threadID)
	if err != nil {
		return nil, err
	}

	merged := CachedThread{
		ThreadID:     threadID,
		ContactName:  contactName,
		ContactPhone: contactPhone,
	}
	seen := make(map[int64]bool)
	if existing != nil {
		merged.Messages = existing.Messages
		merged.LastMessageID = existing.LastMessageID
		if contactName == "" {
			merged.ContactName = existing.ContactName
		}
		if contactPhone == "" {
			merged.ContactPhone = existing.ContactPhone
		}
		for _, m := range existing.Messages {
			seen[m.ID] = true
		}
	}

	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		merged.Messages = append(merged.Messages, m)
		if m.ID > merged.LastMessageID {
			merged.LastMessageID = m.ID
		}
	}
	if lastMessageID > merged.LastMessageID {
		merged.LastMessageID = lastMessageID
	}

	sort.Slice(merged.Messages, func(i, j int) bool {
		return merged.Messages[i].ID < merged.Messages[j].ID
	})
	if maxMessages > 0 && len(merged.Messages) > maxMessages {
		merged.Messages = merged.Messages[len(merged.Messages)-maxMessages:]
	}
	merged.FetchedAt = now

	raw, err := json.Marshal(merged.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages for thread %d: %w", threadID, err)
	}

	_, err = db.Exec(`
		INSERT INTO thread_cache (thread_id, contact_name, contact_phone, messages, last_message_id, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			contact_name = excluded.contact_name,
			contact_phone = excluded.contact_phone,
			messages = excluded.messages,
			last_message_id = excluded.last_message_id,
			fetched_at = excluded.fetched_at`,
		merged.ThreadID, merged.ContactName, merged.ContactPhone, string(raw), merged.LastMessageID, now.UnixMilli())
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

// TouchThread refreshes a thread's fetched_at without altering its contents.
func (db *DB) TouchThread(threadID int64, now time.Time) error {
	_, err := db.Exec(`UPDATE thread_cache SET fetched_at = ? WHERE thread_id = ?`,
		now.UnixMilli(), threadID)
	return err
}

// PruneThreads evicts all but the keep most recently fetched thread entries.
func (db *DB) PruneThreads(keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := db.Exec(`
		DELETE FROM thread_cache
		WHERE thread_id NOT IN (
			SELECT thread_id FROM thread_cache
			ORDER BY fetched_at DESC
			LIMIT ?
		)`, keep)
	return err
}
