// Package queue implements the flashcard review order: a flat list of
// (image, box index) entries with a cursor.
package queue

import (
	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// Queue is the ordered list of boxes under review and the position of the
// current one. Entries always reference live boxes as long as every box
// insertion and removal is reported through OnInsert, OnDelete or Restore.
type Queue struct {
	entries []types.Entry
	pos     int
}

// Build lists every box of every image, images in the given order and boxes
// in file order.
func Build(order []string, counts func(path string) int) *Queue {
	q := &Queue{}
	for _, p := range order {
		for i := range counts(p) {
			q.entries = append(q.entries, types.Entry{ImagePath: p, BoxIndex: i})
		}
	}
	return q
}

// Len returns the number of entries.
func (q *Queue) Len() int { return len(q.entries) }

// Pos returns the zero-based cursor position.
func (q *Queue) Pos() int { return q.pos }

// Entries returns a copy of the entries.
func (q *Queue) Entries() []types.Entry {
	return append([]types.Entry(nil), q.entries...)
}

// Current returns the entry under the cursor. It reports false when the
// queue is empty.
func (q *Queue) Current() (types.Entry, bool) {
	if len(q.entries) == 0 {
		return types.Entry{}, false
	}
	return q.entries[q.pos], true
}

// Advance moves the cursor by delta, stopping at either end.
func (q *Queue) Advance(delta int) {
	q.SetPos(q.pos + delta)
}

// SetPos moves the cursor to i, clamped to the queue.
func (q *Queue) SetPos(i int) {
	q.pos = i
	q.clamp()
}

func (q *Queue) clamp() {
	if q.pos >= len(q.entries) {
		q.pos = len(q.entries) - 1
	}
	if q.pos < 0 {
		q.pos = 0
	}
}

// JumpToBoxNumber moves the cursor to the 1-based box number n.
func (q *Queue) JumpToBoxNumber(n int) error {
	if n < 1 || n > len(q.entries) {
		return errors.Newf("box %d outside 1-%d: %w", n, len(q.entries), errors.ErrOutOfRange).
			Component("queue").
			Category(errors.CategoryValidation).
			Context("box", n).
			Build()
	}
	q.pos = n - 1
	return nil
}

// JumpToPage moves the cursor to the first box of the 1-based image number p
// in order.
func (q *Queue) JumpToPage(p int, order []string) error {
	if p < 1 || p > len(order) {
		return errors.Newf("page %d outside 1-%d: %w", p, len(order), errors.ErrOutOfRange).
			Component("queue").
			Category(errors.CategoryValidation).
			Context("page", p).
			Build()
	}
	target := order[p-1]
	for i, e := range q.entries {
		if e.ImagePath == target {
			q.pos = i
			return nil
		}
	}
	return errors.Newf("page %d: %w", p, errors.ErrNoBoxesOnPage).
		Component("queue").
		Category(errors.CategoryNotFound).
		Context("page", p).
		Context("image", target).
		Build()
}

// shift adds delta to every entry of path whose index is at least from.
func (q *Queue) shift(path string, from, delta int) {
	for i := range q.entries {
		if q.entries[i].ImagePath == path && q.entries[i].BoxIndex >= from {
			q.entries[i].BoxIndex += delta
		}
	}
}

func (q *Queue) insertAt(slot int, e types.Entry) {
	if slot > len(q.entries) {
		slot = len(q.entries)
	}
	q.entries = append(q.entries, types.Entry{})
	copy(q.entries[slot+1:], q.entries[slot:])
	q.entries[slot] = e
}

// OnInsert records that a box was inserted at index at of path. The new entry
// goes right after the cursor; other entries of path at or after at move up.
func (q *Queue) OnInsert(path string, at int) {
	q.shift(path, at, 1)
	slot := q.pos + 1
	if len(q.entries) == 0 {
		slot = 0
	}
	q.insertAt(slot, types.Entry{ImagePath: path, BoxIndex: at})
}

// Restore records that a previously deleted box came back at index at of path.
// The entry is re-inserted under the cursor and the cursor points at it;
// other entries of path at or after at move up.
func (q *Queue) Restore(path string, at int) {
	q.shift(path, at, 1)
	q.clamp()
	q.insertAt(q.pos, types.Entry{ImagePath: path, BoxIndex: at})
}

// OnDelete records that the box at index at of path was removed. Its entry is
// dropped (the cursor then rests on the following entry) and later entries of
// path move down.
func (q *Queue) OnDelete(path string, at int) {
	slot := -1
	if cur, ok := q.Current(); ok && cur.ImagePath == path && cur.BoxIndex == at {
		slot = q.pos
	} else {
		for i, e := range q.entries {
			if e.ImagePath == path && e.BoxIndex == at {
				slot = i
				break
			}
		}
	}
	if slot >= 0 {
		q.entries = append(q.entries[:slot], q.entries[slot+1:]...)
		if slot < q.pos {
			q.pos--
		}
	}
	q.shift(path, at+1, -1)
	q.clamp()
}

// RemoveAtPointer drops the entry under the cursor and renumbers the rest of
// its image. It returns the removed entry.
func (q *Queue) RemoveAtPointer() (types.Entry, bool) {
	cur, ok := q.Current()
	if !ok {
		return types.Entry{}, false
	}
	q.OnDelete(cur.ImagePath, cur.BoxIndex)
	return cur, true
}
