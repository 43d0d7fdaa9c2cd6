package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text, color string
}{
	{`                _`, "#34d399"},
	{`   __ _ _ __ __| |__   ___  _ __`, "#10b981"},
	{`  / _' | '__/ _' '_ \ / _ \| '__|`, "#059669"},
	{` | (_| | | | (_| |_) | (_) | |`, "#047857"},
	{`  \__,_|_|  \__,_.__/ \___/|_|`, "#065f46"},
}

// PrintBanner writes the arbor banner and version to w in the colors the
// terminal supports.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
