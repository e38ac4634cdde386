package notify

import (
	"strconv"
	"time"

	"github.com/safegreen/waconsole/internal/cache"
	"github.com/safegreen/waconsole/internal/config"
)

// Preference keys in the cache preferences table.
const (
	prefSoundEnabled    = "notify.sound_enabled"
	prefPopupEnabled    = "notify.popup_enabled"
	prefSoundStyle      = "notify.sound_style"
	prefCooldownMinutes = "notify.cooldown_minutes"
	prefCustomSoundData = "notify.custom_sound_data"
	prefCustomSoundName = "notify.custom_sound_name"
)

// Built-in sound styles.
const (
	SoundVoice = "voice"
	SoundChime = "chime"
	SoundPing  = "ping"
)

// Preferences are the operator's notification settings. They are loaded
// once at startup and written back on every change. The custom sound is
// stored as encoded data plus its original file name, so it survives the
// source file moving or disappearing.
type Preferences struct {
	SoundEnabled    bool
	PopupEnabled    bool
	SoundStyle      string
	CooldownMinutes float64
	CustomSoundData string // data-URL, empty when no custom clip is set
	CustomSoundName string
}

// Cooldown converts the persisted minutes to a duration. Zero disables
// the cooldown entirely.
func (p Preferences) Cooldown() time.Duration {
	return time.Duration(p.CooldownMinutes * float64(time.Minute))
}

// LoadPreferences reads the stored preferences, falling back to the
// config defaults for anything unset.
func LoadPreferences(db *cache.DB, def config.NotifyConfig) (Preferences, error) {
	p := Preferences{}
	var err error

	if p.SoundEnabled, err = loadBool(db, prefSoundEnabled, def.SoundEnabled); err != nil {
		return p, err
	}
	if p.PopupEnabled, err = loadBool(db, prefPopupEnabled, def.PopupEnabled); err != nil {
		return p, err
	}
	if p.SoundStyle, err = db.GetPreference(prefSoundStyle, def.SoundStyle); err != nil {
		return p, err
	}
	if p.CooldownMinutes, err = loadFloat(db, prefCooldownMinutes, def.CooldownMinutes); err != nil {
		return p, err
	}
	if p.CustomSoundData, err = db.GetPreference(prefCustomSoundData, ""); err != nil {
		return p, err
	}
	if p.CustomSoundName, err = db.GetPreference(prefCustomSoundName, ""); err != nil {
		return p, err
	}
	return p, nil
}

// Save persists the preferences.
func (p Preferences) Save(db *cache.DB) error {
	pairs := map[string]string{
		prefSoundEnabled:    strconv.FormatBool(p.SoundEnabled),
		prefPopupEnabled:    strconv.FormatBool(p.PopupEnabled),
		prefSoundStyle:      p.SoundStyle,
		prefCooldownMinutes: strconv.FormatFloat(p.CooldownMinutes, 'f', -1, 64),
		prefCustomSoundData: p.CustomSoundData,
		prefCustomSoundName: p.CustomSoundName,
	}
	for k, v := range pairs {
		if err := db.SetPreference(k, v); err != nil {
			return err
		}
	}
	return nil
}

func loadBool(db *cache.DB, key string, def bool) (bool, error) {
	raw, err := db.GetPreference(key, strconv.FormatBool(def))
	if err != nil {
		return def, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return v, nil
}

func loadFloat(db *cache.DB, key string, def float64) (float64, error) {
	raw, err := db.GetPreference(key, strconv.FormatFloat(def, 'f', -1, 64))
	if err != nil {
		return def, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return def, nil
	}
	return v, nil
}
