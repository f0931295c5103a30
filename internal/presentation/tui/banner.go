package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`   ____                          _      `, "#38bdf8"},
	{`  / ___|__ _ ___  ___ __ _  __| | ___ `, "#22d3ee"},
	{` | |   / _' / __|/ __/ _' |/ _' |/ _ \`, "#2dd4bf"},
	{` | |__| (_| \__ \ (_| (_| | (_| |  __/`, "#34d399"},
	{`  \____\__,_|___/\___\__,_|\__,_|\___|`, "#4ade80"},
}

// PrintBanner writes the colored Cascade banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
