package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"perkledger/core/types"
)

var (
	bucketEvents = []byte("events")
	bucketMeta   = []byte("meta")

	metaSeqKey  = []byte("seq")
	metaHashKey = []byte("hash")

	// ErrCorrupted is returned by Verify when the stored chain does not
	// reproduce under recomputation.
	ErrCorrupted = errors.New("journal: hash chain corrupted")
)

// Entry is one journaled ledger event. Every entry commits to its predecessor
// through PrevHash, so the whole journal forms a tamper-evident chain
// anchored at a zero hash.
type Entry struct {
	Sequence   uint64            `json:"sequence"`
	Timestamp  int64             `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	PrevHash   string            `json:"prevHash"`
	Hash       string            `json:"hash"`
}

// Journal is the append-only, hash-chained event log backing the ledger's
// audit trail. Appends are serialised by the underlying BoltDB write
// transaction.
type Journal struct {
	db    *bolt.DB
	nowFn func() int64
}

// Open initialises the BoltDB-backed journal, creating the buckets on first
// use.
func Open(path string, options *bolt.Options) (*Journal, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{
		db:    db,
		nowFn: func() int64 { return time.Now().Unix() },
	}, nil
}

// Close releases the underlying Bolt database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// SetNowFunc overrides the timestamp source. Passing nil restores the wall
// clock.
func (j *Journal) SetNowFunc(now func() int64) {
	if now == nil {
		j.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	j.nowFn = now
}

// Append records the event as the next entry of the chain and returns the
// stored form.
func (j *Journal) Append(evt *types.Event) (*Entry, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal: not open")
	}
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return nil, fmt.Errorf("journal: event type must be provided")
	}
	entry := &Entry{}
	err := j.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		events := tx.Bucket(bucketEvents)

		var seq uint64
		if raw := meta.Get(metaSeqKey); len(raw) == 8 {
			seq = binary.BigEndian.Uint64(raw)
		}
		var prev [32]byte
		if raw := meta.Get(metaHashKey); len(raw) == len(prev) {
			copy(prev[:], raw)
		}

		next := seq + 1
		ts := j.nowFn()
		attrs := cloneAttributes(evt.Attributes)
		hash := entryHash(next, ts, evt.Type, attrs, prev)
		*entry = Entry{
			Sequence:   next,
			Timestamp:  ts,
			Type:       evt.Type,
			Attributes: attrs,
			PrevHash:   hex.EncodeToString(prev[:]),
			Hash:       hex.EncodeToString(hash[:]),
		}

		payload, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := events.Put(entryKey(next), payload); err != nil {
			return err
		}
		seqBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(seqBuf, next)
		if err := meta.Put(metaSeqKey, seqBuf); err != nil {
			return err
		}
		return meta.Put(metaHashKey, hash[:])
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Head returns the sequence number and hash of the latest entry. An empty
// journal reads sequence 0 and the zero hash.
func (j *Journal) Head() (uint64, string, error) {
	if j == nil || j.db == nil {
		return 0, "", fmt.Errorf("journal: not open")
	}
	var seq uint64
	var head [32]byte
	err := j.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if raw := meta.Get(metaSeqKey); len(raw) == 8 {
			seq = binary.BigEndian.Uint64(raw)
		}
		if raw := meta.Get(metaHashKey); len(raw) == len(head) {
			copy(head[:], raw)
		}
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return seq, hex.EncodeToString(head[:]), nil
}

// Replay walks every stored entry in sequence order. The callback sees a
// fresh copy per entry; returning an error aborts the walk.
func (j *Journal) Replay(fn func(Entry) error) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal: not open")
	}
	if fn == nil {
		return fmt.Errorf("journal: replay callback must not be nil")
	}
	return j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketEvents).Cursor()
		for key, raw := cursor.First(); key != nil; key, raw = cursor.Next() {
			var entry Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// Verify recomputes the whole chain: contiguous sequence numbers from 1,
// every entry hashing to its stored value, every entry committing to its
// predecessor, and the meta head matching the final entry.
func (j *Journal) Verify() error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal: not open")
	}
	return j.db.View(func(tx *bolt.Tx) error {
		var (
			expected uint64 = 1
			prev     [32]byte
		)
		cursor := tx.Bucket(bucketEvents).Cursor()
		for key, raw := cursor.First(); key != nil; key, raw = cursor.Next() {
			var entry Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
			if entry.Sequence != expected {
				return fmt.Errorf("%w: expected sequence %d, found %d", ErrCorrupted, expected, entry.Sequence)
			}
			if entry.PrevHash != hex.EncodeToString(prev[:]) {
				return fmt.Errorf("%w: entry %d does not commit to its predecessor", ErrCorrupted, entry.Sequence)
			}
			recomputed := entryHash(entry.Sequence, entry.Timestamp, entry.Type, entry.Attributes, prev)
			if entry.Hash != hex.EncodeToString(recomputed[:]) {
				return fmt.Errorf("%w: entry %d hash mismatch", ErrCorrupted, entry.Sequence)
			}
			prev = recomputed
			expected++
		}

		meta := tx.Bucket(bucketMeta)
		var seq uint64
		if raw := meta.Get(metaSeqKey); len(raw) == 8 {
			seq = binary.BigEndian.Uint64(raw)
		}
		if seq != expected-1 {
			return fmt.Errorf("%w: meta sequence %d does not match %d entries", ErrCorrupted, seq, expected-1)
		}
		var head [32]byte
		if raw := meta.Get(metaHashKey); len(raw) == len(head) {
			copy(head[:], raw)
		}
		if head != prev {
			return fmt.Errorf("%w: meta head does not match final entry", ErrCorrupted)
		}
		return nil
	})
}

func entryKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func cloneAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// entryHash commits to every field of the entry plus the predecessor hash.
// Attributes are folded in sorted key order so the digest is deterministic.
func entryHash(seq uint64, ts int64, eventType string, attrs map[string]string, prev [32]byte) [32]byte {
	buf := bytes.NewBuffer(nil)
	writeUint64(buf, seq)
	writeUint64(buf, uint64(ts))
	writeDelimited(buf, []byte(eventType))
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	writeUint32(buf, uint32(len(keys)))
	for _, key := range keys {
		writeDelimited(buf, []byte(key))
		writeDelimited(buf, []byte(attrs[key]))
	}
	buf.Write(prev[:])
	return blake3.Sum256(buf.Bytes())
}

func writeUint64(buf *bytes.Buffer, value uint64) {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], value)
	buf.Write(scratch[:])
}

func writeUint32(buf *bytes.Buffer, value uint32) {
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], value)
	buf.Write(scratch[:])
}

func writeDelimited(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	if len(data) > 0 {
		buf.Write(data)
	}
}
