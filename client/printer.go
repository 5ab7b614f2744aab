package client

import (
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"

	"github.com/cyberinferno/msgboard/session"
)

var styles = map[session.LineKind]color.Style{
	session.KindInfo:      color.New(color.FgCyan),
	session.KindError:     color.New(color.FgRed),
	session.KindHelp:      color.New(color.FgYellow),
	session.KindBroadcast: color.New(color.FgWhite),
	session.KindDirectIn:  color.New(color.FgGreen, color.OpBold),
	session.KindDirectOut: color.New(color.FgGray),
}

// Printer writes session lines to the terminal. The input loop and the
// receive loop share one Printer, so writes are serialized.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	noColor bool
}

// NewPrinter returns a Printer writing to out. With noColor set lines are
// written verbatim.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	return &Printer{out: out, noColor: noColor}
}

// Print writes each line followed by a newline.
func (p *Printer) Print(lines ...session.Line) {
	if len(lines) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, l := range lines {
		text := l.Text
		if style, ok := styles[l.Kind]; ok && !p.noColor {
			text = style.Render(text)
		}
		_, _ = fmt.Fprintln(p.out, text)
	}
}

// Println writes plain status text such as shutdown notices.
func (p *Printer) Println(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, text)
}
