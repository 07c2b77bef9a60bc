package results

import (
	"reflect"
	"testing"
)

func makeRows(values ...string) []NormalizedRow {
	rows := make([]NormalizedRow, 0, len(values))
	for _, v := range values {
		rows = append(rows, NormalizedRow{Op: "+I", Columns: []Column{{Name: "word", Value: v}}})
	}
	return rows
}

func TestBufferAppendAssignsMonotonicSeq(t *testing.T) {
	buf := NewBuffer(10)

	if appended, dropped := buf.Append(makeRows("a", "b")); appended != 2 || dropped != 0 {
		t.Fatalf("Append = (%d, %d), want (2, 0)", appended, dropped)
	}
	if appended, dropped := buf.Append(makeRows("c")); appended != 1 || dropped != 0 {
		t.Fatalf("Append = (%d, %d), want (1, 0)", appended, dropped)
	}

	rows := buf.Snapshot()
	for i, row := range rows {
		if row.Seq != int64(i) {
			t.Fatalf("rows[%d].Seq = %d, want %d", i, row.Seq, i)
		}
	}
}

func TestBufferRejectsBeyondLimit(t *testing.T) {
	buf := NewBuffer(3)

	appended, dropped := buf.Append(makeRows("a", "b", "c", "d", "e"))
	if appended != 3 || dropped != 2 {
		t.Fatalf("Append = (%d, %d), want (3, 2)", appended, dropped)
	}
	if !buf.Truncated() {
		t.Fatal("Truncated = false, want true")
	}
	if buf.Count() != 3 {
		t.Fatalf("Count = %d, want 3", buf.Count())
	}

	// Kept rows are the earliest ones; later appends cannot displace them.
	if appended, _ := buf.Append(makeRows("f")); appended != 0 {
		t.Fatalf("Append after limit = %d, want 0", appended)
	}
	first := buf.Slice(0, 3)
	if first[0].Columns[0].Value != "a" || first[2].Columns[0].Value != "c" {
		t.Fatalf("kept rows = %v, want a..c", first)
	}
}

func TestBufferSliceClipsAndCopies(t *testing.T) {
	buf := NewBuffer(100)
	buf.Append(makeRows("a", "b", "c", "d", "e"))

	page := buf.Slice(1, 2)
	if len(page) != 2 || page[0].Columns[0].Value != "c" {
		t.Fatalf("Slice(1, 2) = %v, want [c d]", page)
	}

	tail := buf.Slice(2, 2)
	if len(tail) != 1 || tail[0].Columns[0].Value != "e" {
		t.Fatalf("Slice(2, 2) = %v, want [e]", tail)
	}

	if got := buf.Slice(9, 10); len(got) != 0 {
		t.Fatalf("out-of-range Slice = %v, want empty", got)
	}
	if got := buf.Slice(-1, 10); len(got) != 0 {
		t.Fatalf("negative page Slice = %v, want empty", got)
	}

	// Mutating a returned page must not touch the buffer.
	page[0].Columns[0].Value = "mutated"
	again := buf.Slice(1, 2)
	if again[0].Columns[0].Value != "c" {
		t.Fatalf("buffer row changed through returned slice: %v", again[0])
	}
}

func TestBufferSliceStableWhileGrowing(t *testing.T) {
	buf := NewBuffer(100)
	buf.Append(makeRows("a", "b"))

	before := buf.Slice(0, 2)
	buf.Append(makeRows("c", "d"))
	after := buf.Slice(0, 2)

	if !reflect.DeepEqual(before, after) {
		t.Fatalf("page 0 changed after append: %v vs %v", before, after)
	}
}
