// Package progress prints a fixed width text progress bar.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Width is the number of ticks of a complete bar.
const Width = 80

// Ruler is printed above the ticks.
var Ruler = "|" + strings.Repeat("---------|", Width/10)

// Bar prints a star for every 1/Width of the work done.
type Bar struct {
	mu    sync.Mutex
	w     io.Writer
	total int
	ticks int
	done  bool
}

// NewBar prints the ruler and returns a bar for total units of work.
func NewBar(w io.Writer, total int) *Bar {
	fmt.Fprintln(w, Ruler)
	return &Bar{w: w, total: total}
}

// Set advances the bar to done units of work.
func (b *Bar) Set(done int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done || b.total <= 0 {
		return
	}
	if done > b.total {
		done = b.total
	}
	ticks := done * Width / b.total
	if ticks > b.ticks {
		fmt.Fprint(b.w, strings.Repeat("*", ticks-b.ticks))
		b.ticks = ticks
	}
	if ticks == Width {
		fmt.Fprintln(b.w)
		b.done = true
	}
}

// Report is a progress callback; it resets the total when it changes.
func (b *Bar) Report(done, total int) {
	b.mu.Lock()
	if total != b.total && total > 0 {
		b.total = total
	}
	b.mu.Unlock()
	b.Set(done)
}

// Finish completes the bar.
func (b *Bar) Finish() {
	b.mu.Lock()
	if b.total <= 0 {
		b.total = 1
	}
	total := b.total
	b.mu.Unlock()
	b.Set(total)
}
