package ui

import (
	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
)

// Busy shows a spinner labelled text while fn runs.
func Busy[T any](u *UI, text string, fn func() (T, error)) (T, error) {
	if !u.interactive {
		u.Println(text + "...")
		return fn()
	}

	spinner, err := pterm.DefaultSpinner.WithWriter(u.out).WithRemoveWhenDone(true).Start(text)
	if err != nil {
		return fn()
	}
	result, err := fn()
	spinner.Stop()
	return result, err
}

// Progress reports download progress. Call the returned update func with the
// bytes received so far and stop once the transfer ends.
func (u *UI) Progress(title string) (update func(done, total int64), stop func()) {
	if !u.interactive {
		var last int64
		update = func(done, total int64) {
			if total <= 0 || done == total || done-last >= total/10 {
				last = done
				u.Printf("%s: %s\n", title, progressLabel(done, total))
			}
		}
		return update, func() {}
	}

	var bar *pterm.ProgressbarPrinter
	update = func(done, total int64) {
		if total <= 0 {
			return
		}
		if bar == nil {
			var err error
			bar, err = pterm.DefaultProgressbar.
				WithWriter(u.out).
				WithTitle(title).
				WithShowCount(false).
				WithTotal(int(total)).
				Start()
			if err != nil {
				return
			}
		}
		bar.UpdateTitle(title + " " + progressLabel(done, total))
		if delta := int(done) - bar.Current; delta > 0 {
			bar.Add(delta)
		}
	}
	stop = func() {
		if bar != nil {
			bar.Stop()
		}
	}
	return update, stop
}

func progressLabel(done, total int64) string {
	if total <= 0 {
		return humanize.Bytes(uint64(done))
	}
	return humanize.Bytes(uint64(done)) + " / " + humanize.Bytes(uint64(total))
}
