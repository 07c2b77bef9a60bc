package results

import "sync"

// Buffer is the append-only, capacity-bounded store of normalized rows for
// one watch session. The manager's poll loop is the sole writer; pagination
// and count reads come from arbitrary goroutines under the read lock, so a
// slice observed once can never shrink or reorder afterwards.
//
// When the limit is reached the buffer keeps what it has and rejects further
// appends (the captured snapshot the user is paging through stays intact);
// the drop is reported so the caller can halt polling.
type Buffer struct {
	mu        sync.RWMutex
	limit     int
	rows      []NormalizedRow
	truncated bool
	nextSeq   int64
}

func NewBuffer(limit int) *Buffer {
	if limit < 0 {
		limit = 0
	}
	return &Buffer{limit: limit}
}

// Append assigns sequence numbers and stores as many of the given rows as
// capacity allows. It returns how many rows were kept and how many were
// dropped at the limit.
func (b *Buffer) Append(rows []NormalizedRow) (appended, dropped int) {
	if len(rows) == 0 {
		return 0, 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - len(b.rows)
	if room < 0 {
		room = 0
	}
	keep := len(rows)
	if keep > room {
		keep = room
	}

	for i := 0; i < keep; i++ {
		row := rows[i]
		row.Seq = b.nextSeq
		b.nextSeq++
		b.rows = append(b.rows, row)
	}

	dropped = len(rows) - keep
	if dropped > 0 {
		b.truncated = true
	}
	return keep, dropped
}

// Slice returns a copy of rows[page*pageSize : page*pageSize+pageSize]
// clipped to the current length. Out-of-range pages yield an empty slice.
func (b *Buffer) Slice(page, pageSize int) []NormalizedRow {
	if page < 0 || pageSize <= 0 {
		return []NormalizedRow{}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	start := page * pageSize
	if start >= len(b.rows) {
		return []NormalizedRow{}
	}
	end := start + pageSize
	if end > len(b.rows) {
		end = len(b.rows)
	}

	out := make([]NormalizedRow, end-start)
	copy(out, b.rows[start:end])
	return out
}

func (b *Buffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rows)
}

func (b *Buffer) Truncated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.truncated
}

// Snapshot copies the full accumulated row sequence, for export.
func (b *Buffer) Snapshot() []NormalizedRow {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]NormalizedRow, len(b.rows))
	copy(out, b.rows)
	return out
}
