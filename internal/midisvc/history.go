package midisvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/neuroplastio/neio-midi/midiapi"
)

const historyPrefix = "midi/"

// DeviceRecord is the persisted trace of a port that has been discovered at least once.
type DeviceRecord struct {
	Kind        midiapi.Kind      `json:"kind"`
	Device      midiapi.RawDevice `json:"device"`
	LastKey     string            `json:"lastKey"`
	FirstSeenAt time.Time         `json:"firstSeenAt"`
	LastSeenAt  time.Time         `json:"lastSeenAt"`
}

// History keeps DeviceRecords in badger.
type History struct {
	db *badger.DB
}

func NewHistory(db *badger.DB) *History {
	return &History{db: db}
}

func (h *History) recordKey(kind midiapi.Kind, handle string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", historyPrefix, kind, handle))
}

// Record upserts the record for d, keeping its first sighting.
func (h *History) Record(d midiapi.Descriptor, now time.Time) (DeviceRecord, error) {
	var rec DeviceRecord
	err := h.db.Update(func(txn *badger.Txn) error {
		key := h.recordKey(d.Kind, d.Handle)
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal device record: %w", err)
			}
		}
		rec.Kind = d.Kind
		rec.Device = d.RawDevice
		if key, ok := d.Key(); ok {
			rec.LastKey = key.String()
		}
		if rec.FirstSeenAt.IsZero() {
			rec.FirstSeenAt = now
		}
		rec.LastSeenAt = now
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal device record: %w", err)
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return DeviceRecord{}, fmt.Errorf("failed to record device: %w", err)
	}
	return rec, nil
}

// List returns every known record, ordered by kind and handle.
func (h *History) List() ([]DeviceRecord, error) {
	var records []DeviceRecord
	err := h.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		prefix := []byte(historyPrefix)
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			var rec DeviceRecord
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list device records: %w", err)
	}
	return records, nil
}

func (s *Service) KnownDevices() ([]DeviceRecord, error) {
	if s.options.history == nil {
		return nil, nil
	}
	return s.options.history.List()
}
