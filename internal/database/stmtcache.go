package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// stmtCache keeps prepared statements keyed by their original query text.
// Lookup hashes the text with FNV-1a and scans linearly; a hit requires
// both the hash and the exact text to match. When every slot is taken the
// least recently used statement is finalized and its slot reused.
type stmtCache struct {
	capacity int
	tick     int64
	slots    []cachedStmt
}

type cachedStmt struct {
	hash     uint32
	text     string
	stmt     *sqlx.Stmt
	lastUsed int64
}

func newStmtCache(capacity int) *stmtCache {
	if capacity < 1 {
		capacity = 1
	}
	return &stmtCache{
		capacity: capacity,
		slots:    make([]cachedStmt, 0, capacity),
	}
}

// hashString is 32-bit FNV-1a.
func hashString(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// get returns the cached statement for text, preparing rebound on a miss.
func (c *stmtCache) get(ctx context.Context, db *sqlx.DB, text, rebound string) (*sqlx.Stmt, error) {
	hash := hashString(text)
	c.tick++

	for i := range c.slots {
		slot := &c.slots[i]
		if slot.hash == hash && slot.text == text {
			slot.lastUsed = c.tick
			return slot.stmt, nil
		}
	}

	stmt, err := db.PreparexContext(ctx, rebound)
	if err != nil {
		return nil, err
	}

	if len(c.slots) < c.capacity {
		c.slots = append(c.slots, cachedStmt{hash, text, stmt, c.tick})
		return stmt, nil
	}

	oldest := 0
	for i := 1; i < len(c.slots); i++ {
		if c.slots[i].lastUsed < c.slots[oldest].lastUsed {
			oldest = i
		}
	}
	c.slots[oldest].stmt.Close()
	c.slots[oldest] = cachedStmt{hash, text, stmt, c.tick}
	return stmt, nil
}

// len returns the number of live statements.
func (c *stmtCache) len() int {
	return len(c.slots)
}

// clear finalizes every cached statement.
func (c *stmtCache) clear() {
	for i := range c.slots {
		c.slots[i].stmt.Close()
	}
	c.slots = c.slots[:0]
}
