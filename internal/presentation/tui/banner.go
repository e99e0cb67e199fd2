package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner for quire.
func PrintBanner(w io.Writer) {
	p := termenv.NewOutput(w).ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"   __ _ _   _(_)_ __ ___ ", "#818cf8"},
		{"  / _` | | | | | '__/ _ \\", "#a78bfa"},
		{" | (_| | |_| | | | |  __/", "#c084fc"},
		{"  \\__, |\\__,_|_|_|  \\___|", "#e879f9"},
		{"     |_|                 ", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
