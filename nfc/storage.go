package nfc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"
)

// Sighting is what the seen cache remembers about a card.
type Sighting struct {
	ID        string    `json:"id"`
	Reader    string    `json:"reader"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Count     int       `json:"count"`
}

// SeenCache keeps track of recently activated cards in memory, so that a card being tapped repeatedly within the
// hold-off only counts once. Entries expire after the hold-off. Nothing is written to disk.
type SeenCache struct {
	instance *buntdb.DB
	holdOff  time.Duration
	now      func() time.Time
}

func NewSeenCache(holdOff time.Duration) (*SeenCache, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &SeenCache{instance: db, holdOff: holdOff, now: time.Now}, nil
}

func (c *SeenCache) Close() error {
	return c.instance.Close()
}

// Record registers an activation of the card with the given id. fresh is false when the card was already seen
// within the hold-off. A zero hold-off makes every activation fresh.
func (c *SeenCache) Record(id, reader string) (s Sighting, fresh bool, err error) {
	now := c.now()
	err = c.instance.Update(func(tx *buntdb.Tx) error {
		key := getSightingKey(id)
		var opts *buntdb.SetOptions

		v, err := tx.Get(key)
		switch err {
		case nil:
			if err := json.Unmarshal([]byte(v), &s); err != nil {
				return err
			}
			fresh = c.holdOff <= 0
			if ttl, err := tx.TTL(key); err == nil && ttl > 0 {
				opts = &buntdb.SetOptions{Expires: true, TTL: ttl}
			}
		case buntdb.ErrNotFound:
			s = Sighting{ID: id, FirstSeen: now}
			fresh = true
		default:
			return err
		}

		s.Reader = reader
		s.LastSeen = now
		s.Count++
		if fresh && c.holdOff > 0 {
			opts = &buntdb.SetOptions{Expires: true, TTL: c.holdOff}
		}

		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(key, string(data), opts)
		return err
	})
	return s, fresh, err
}

func (c *SeenCache) Lookup(id string) (Sighting, error) {
	var s Sighting
	err := c.instance.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(getSightingKey(id))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(v), &s)
	})
	return s, err
}

// All returns every sighting still held by the cache.
func (c *SeenCache) All() ([]Sighting, error) {
	var all []Sighting
	err := c.instance.View(func(tx *buntdb.Tx) error {
		var inner error
		err := tx.Ascend("", func(key, value string) bool {
			var s Sighting
			if inner = json.Unmarshal([]byte(value), &s); inner != nil {
				return false
			}
			all = append(all, s)
			return true
		})
		if err != nil {
			return err
		}
		return inner
	})
	return all, err
}

func getSightingKey(id string) string {
	return fmt.Sprintf("card:%v", id)
}
