package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Keys the link reads and writes.
const (
	KeyPreviousConnectionState = "previous_connection_state"
	KeySilentMode              = "silent_mode"
	KeyCollectWatchVoltage     = "collect_watch_voltage"
	KeyInvertLCD               = "invert_lcd"
)

// Change is one preference write.
type Change struct {
	Key   string
	Value string
}

// Preferences is a typed key/value view over the preferences table with
// change notification.
type Preferences struct {
	db *DB

	mu     sync.RWMutex
	subs   map[int]chan Change
	nextID int
}

func NewPreferences(db *DB) *Preferences {
	return &Preferences{db: db, subs: make(map[int]chan Change)}
}

// lookup returns the raw value and whether it exists.
func (p *Preferences) lookup(key string) (string, bool, error) {
	var v string
	err := p.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: read %s: %w", key, err)
	}
	return v, true, nil
}

func (p *Preferences) String(key, def string) string {
	v, ok, err := p.lookup(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("store.Preferences.String fallback")
		return def
	}
	if !ok {
		return def
	}
	return v
}

func (p *Preferences) Bool(key string, def bool) bool {
	raw := p.String(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("store.Preferences.Bool invalid, using default")
		return def
	}
	return v
}

// Int parses a numeric setting. A malformed value returns def together with
// ErrInvalidSetting so callers can log the configuration fault.
func (p *Preferences) Int(key string, def int) (int, error) {
	raw := strings.TrimSpace(p.String(key, ""))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, key, raw)
	}
	return v, nil
}

func (p *Preferences) SetString(key, value string) error {
	_, err := p.db.Exec(
		`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	p.publish(Change{Key: key, Value: value})
	return nil
}

func (p *Preferences) SetBool(key string, value bool) error {
	return p.SetString(key, strconv.FormatBool(value))
}

func (p *Preferences) SetInt(key string, value int) error {
	return p.SetString(key, strconv.Itoa(value))
}

// Subscribe returns a change feed and an unsubscribe func that closes it.
// Slow subscribers miss changes rather than block writers.
func (p *Preferences) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

func (p *Preferences) publish(c Change) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
