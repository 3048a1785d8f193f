// Package progress renders transfer bars on top of mpb.
package progress

import (
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

type Progress struct {
	progress *mpb.Progress
}

func New() *Progress {
	return &Progress{
		progress: mpb.New(),
	}
}

// NewBar returns a bar for a transfer of n bytes, labeled with text.
func (p *Progress) NewBar(n int64, text string) *mpb.Bar {
	return p.progress.AddBar(n,
		mpb.PrependDecorators(
			decor.Name(text, decor.WC{W: 16, C: decor.DindentRight}),
			decor.CountersKibiByte(" % .2f / % .2f", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 6}),
		),
		mpb.BarRemoveOnComplete(),
	)
}

// Wait blocks until all bars have completed or aborted.
func (p *Progress) Wait() {
	p.progress.Wait()
}
