package cache

import "database/sql"

// GetPreference returns the stored value for a preference key, or def if unset.
func (db *DB) GetPreference(key, def string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetPreference stores a preference value, replacing any previous one.
func (db *DB) SetPreference(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO preferences (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}
