package cache

import (
	"database/sql"
	"time"
)

// GetPanel returns the cached panel snapshot for a channel key, or nil if absent.
func (db *DB) GetPanel(channel string) (*PanelEntry, error) {
	var (
		p       PanelEntry
		fetched int64
	)
	err := db.QueryRow(`
		SELECT channel, payload, fetched_at
		FROM panel_cache
		WHERE channel = ?`, channel).
		Scan(&p.Channel, &p.Payload, &fetched)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.FetchedAt = time.UnixMilli(fetched)
	return &p, nil
}

// SavePanel stores a panel snapshot for a channel key, replacing any previous one.
func (db *DB) SavePanel(channel, payload string, now time.Time) error {
	_, err := db.Exec(`
		INSERT INTO panel_cache (channel, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(channel) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at`,
		channel, payload, now.UnixMilli())
	return err
}
