package frame

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// ULIDGen produces strictly increasing 16-byte ULIDs used as frame msg ids.
// Safe for concurrent use.
type ULIDGen struct {
	mu   sync.Mutex
	prev [16]byte
}

// NewULIDGen creates a new ULID generator.
func NewULIDGen() *ULIDGen {
	return &ULIDGen{}
}

// Next returns the next ULID:
//
//	[0-5]   48-bit Unix millisecond timestamp, big-endian
//	[6-15]  80-bit entropy, incremented when the millisecond repeats
func (g *ULIDGen) Next() [16]byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	var id [16]byte
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixMilli()))
	copy(id[:6], ts[2:])

	if bytes.Equal(id[:6], g.prev[:6]) {
		copy(id[6:], g.prev[6:])
		for i := len(id) - 1; i >= 6; i-- {
			id[i]++
			if id[i] != 0 {
				break
			}
		}
	} else {
		rand.Read(id[6:])
	}

	g.prev = id
	return id
}

// Timestamp extracts the millisecond timestamp from a ULID.
func Timestamp(id [16]byte) time.Time {
	var ts [8]byte
	copy(ts[2:], id[:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(ts[:])))
}
