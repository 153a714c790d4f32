// Package progress reports how far a long-running image export has come.
// Transfers register their bytes through Writer; a Reporter prints a status
// line once per second until its context ends.
package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwdisk/internal/humanize"
)

var bytesTransferred uint64

// Reset zeroes the transfer counter and returns its previous value.
func Reset() uint64 {
	return atomic.SwapUint64(&bytesTransferred, 0)
}

// Writer counts the bytes written through it; wrap it into an
// io.MultiWriter next to the real destination.
type Writer struct{}

func (w Writer) Write(p []byte) (n int, err error) {
	atomic.AddUint64(&bytesTransferred, uint64(len(p)))
	return len(p), nil
}

// Reporter prints a once-per-second status line for the current transfer.
type Reporter struct {
	total uint64

	mu     sync.Mutex
	status string
}

// SetStatus names the current phase, e.g. the output file.
func (p *Reporter) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// SetTotal announces the expected transfer size so that Report can show a
// percentage.
func (p *Reporter) SetTotal(total uint64) {
	atomic.StoreUint64(&p.total, total)
}

func (p *Reporter) getStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Report prints the status line until ctx is done, then a final summary.
func (p *Reporter) Report(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	last := atomic.LoadUint64(&bytesTransferred)
	for {
		select {
		case <-ticker.C:
			transferred := atomic.LoadUint64(&bytesTransferred)
			if transferred < last {
				// transferred was reset
				last = 0
			}
			bytesPerS := transferred - last
			last = transferred
			rate := humanize.BPS(bytesPerS)
			status := rate
			if total := atomic.LoadUint64(&p.total); total > 0 {
				pct := float64(transferred) / float64(total) * 100
				status = fmt.Sprintf("%02.2f%% of %s, writing at %s",
					pct,
					humanize.Bytes(total),
					rate)
			}
			fmt.Printf("\r[%s] %s                 ", p.getStatus(), status)
		case <-ctx.Done():
			fmt.Printf("\r[%s] %s written          \n",
				p.getStatus(), humanize.Bytes(atomic.LoadUint64(&bytesTransferred)))
			return
		}
	}
}
