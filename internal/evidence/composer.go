// Package evidence accumulates a case description from typed text, speech
// transcripts and ingested files, together with the rubric checklist.
package evidence

import (
	"errors"
	"strings"
	"sync"

	"tokasu/internal/domain"
)

var ErrSpeechActive = errors.New("a speech session is already running")

// Submission is the frozen input handed to the classification orchestrator.
type Submission struct {
	Description  string
	Category     string
	CheckedItems []domain.ItemRef
	Files        []domain.FileMeta
}

// Composer is safe for concurrent use; a speech session writes to it from
// its own goroutine.
type Composer struct {
	mu        sync.Mutex
	committed strings.Builder
	pending   string
	files     []domain.FileMeta
	checked   map[domain.ItemRef]bool
	speaking  bool
}

func NewComposer() *Composer {
	return &Composer{checked: make(map[domain.ItemRef]bool)}
}

// AppendText appends s verbatim.
func (c *Composer) AppendText(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed.WriteString(s)
}

// appendBlock adds a block separated from existing text by a blank line.
func (c *Composer) appendBlock(block string, meta domain.FileMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed.Len() > 0 {
		c.committed.WriteString("\n\n")
	}
	c.committed.WriteString(block)
	c.files = append(c.files, meta)
}

// Description returns the committed text followed by any pending interim
// transcript.
func (c *Composer) Description() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed.String() + c.pending
}

func (c *Composer) Files() []domain.FileMeta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.FileMeta(nil), c.files...)
}

func (c *Composer) Check(ref domain.ItemRef) error {
	if _, err := domain.Lookup(ref); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked[ref] = true
	return nil
}

func (c *Composer) Uncheck(ref domain.ItemRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checked, ref)
}

// Toggle flips ref and reports whether it is now checked.
func (c *Composer) Toggle(ref domain.ItemRef) (bool, error) {
	if _, err := domain.Lookup(ref); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checked[ref] {
		delete(c.checked, ref)
		return false, nil
	}
	c.checked[ref] = true
	return true, nil
}

// Checked returns the selected items in rubric order.
func (c *Composer) Checked() []domain.ItemRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.ItemRef
	for _, axis := range domain.Axes() {
		for i := range axis.Items {
			ref := domain.ItemRef{Axis: axis.ID, Index: i}
			if c.checked[ref] {
				out = append(out, ref)
			}
		}
	}
	return out
}

// Snapshot freezes the composer state into a Submission. Pending interim
// speech text is included.
func (c *Composer) Snapshot(category string) Submission {
	checked := c.Checked()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Submission{
		Description:  c.committed.String() + c.pending,
		Category:     strings.TrimSpace(category),
		CheckedItems: checked,
		Files:        append([]domain.FileMeta(nil), c.files...),
	}
}

func (c *Composer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed.Reset()
	c.pending = ""
	c.files = nil
	c.checked = make(map[domain.ItemRef]bool)
}

func (c *Composer) setInterim(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = text
}

func (c *Composer) commitFinal(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed.WriteString(text)
	c.pending = ""
}

func (c *Composer) flushInterim() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed.WriteString(c.pending)
	c.pending = ""
	c.speaking = false
}
