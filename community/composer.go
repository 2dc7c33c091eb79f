package community

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

// Blank reports whether body is empty after trimming whitespace. Blank
// bodies are never written: the operation is not attempted at all.
func Blank(body string) bool {
	return strings.TrimSpace(body) == ""
}

// ImageName returns the content store name of an image uploaded by
// uploaderID at t. The original file extension is kept.
func ImageName(uploaderID string, t time.Time, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("posts/%s/%d%s", uploaderID, t.UnixMilli(), ext)
}

// A Draft is the text currently typed into an input box.
type Draft struct {
	mu   sync.Mutex
	text string
}

// Set replaces the draft text.
func (d *Draft) Set(text string) {
	d.mu.Lock()
	d.text = text
	d.mu.Unlock()
}

// Text returns the draft text.
func (d *Draft) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *Draft) clear() {
	d.Set("")
}
