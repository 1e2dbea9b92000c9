// Package history keeps a linear undo/redo log of box mutations.
package history

import (
	"fmt"

	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// Target applies box mutations. Callers persist the affected image after each
// Record, Undo or Redo according to their save policy.
type Target interface {
	InsertBox(path string, i int, b types.Box) error
	RemoveBox(path string, i int) error
	ReplaceBox(path string, i int, b types.Box) error
}

// Log is a linear command history. Commands before the cursor are applied,
// commands after it can be redone.
type Log struct {
	cmds []types.Command
	idx  int
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Push appends an already applied command, discarding anything that could
// have been redone.
func (l *Log) Push(cmd types.Command) {
	l.cmds = append(l.cmds[:l.idx], cmd.Clone())
	l.idx = len(l.cmds)
}

// Record applies cmd to target and pushes it. A command that fails to apply
// is not recorded.
func (l *Log) Record(target Target, cmd types.Command) error {
	if err := apply(target, cmd); err != nil {
		return err
	}
	l.Push(cmd)
	return nil
}

// Undo inverts the last applied command. It reports false when there is
// nothing to undo. On error the cursor does not move.
func (l *Log) Undo(target Target) (bool, error) {
	if l.idx == 0 {
		return false, nil
	}
	if err := invert(target, l.cmds[l.idx-1]); err != nil {
		return false, err
	}
	l.idx--
	return true, nil
}

// Redo re-applies the next undone command. It reports false when there is
// nothing to redo. On error the cursor does not move.
func (l *Log) Redo(target Target) (bool, error) {
	if l.idx >= len(l.cmds) {
		return false, nil
	}
	if err := apply(target, l.cmds[l.idx]); err != nil {
		return false, err
	}
	l.idx++
	return true, nil
}

// PeekUndo returns the command Undo would invert.
func (l *Log) PeekUndo() (types.Command, bool) {
	if l.idx == 0 {
		return types.Command{}, false
	}
	return l.cmds[l.idx-1].Clone(), true
}

// PeekRedo returns the command Redo would apply.
func (l *Log) PeekRedo() (types.Command, bool) {
	if l.idx >= len(l.cmds) {
		return types.Command{}, false
	}
	return l.cmds[l.idx].Clone(), true
}

func (l *Log) CanUndo() bool { return l.idx > 0 }
func (l *Log) CanRedo() bool { return l.idx < len(l.cmds) }

// Len returns the number of recorded commands, including undone ones.
func (l *Log) Len() int { return len(l.cmds) }

// Clear drops the whole history.
func (l *Log) Clear() {
	l.cmds = nil
	l.idx = 0
}

func apply(t Target, c types.Command) error {
	switch c.Kind {
	case types.CommandAdd:
		if c.New == nil {
			return fmt.Errorf("add command without box")
		}
		return t.InsertBox(c.ImagePath, c.Index, *c.New)
	case types.CommandDelete:
		return t.RemoveBox(c.ImagePath, c.Index)
	case types.CommandModify:
		if c.New == nil {
			return fmt.Errorf("modify command without new box")
		}
		return t.ReplaceBox(c.ImagePath, c.Index, *c.New)
	}
	return fmt.Errorf("unknown command kind %v", c.Kind)
}

func invert(t Target, c types.Command) error {
	switch c.Kind {
	case types.CommandAdd:
		return t.RemoveBox(c.ImagePath, c.Index)
	case types.CommandDelete:
		if c.Old == nil {
			return fmt.Errorf("delete command without box snapshot")
		}
		return t.InsertBox(c.ImagePath, c.Index, *c.Old)
	case types.CommandModify:
		if c.Old == nil {
			return fmt.Errorf("modify command without old box")
		}
		return t.ReplaceBox(c.ImagePath, c.Index, *c.Old)
	}
	return fmt.Errorf("unknown command kind %v", c.Kind)
}
