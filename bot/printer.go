package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/42wim/matrixbotd/bridge"
	"github.com/42wim/matrixbotd/config"
	"github.com/alecthomas/chroma/v2/quick"
	strip "github.com/grokify/html-strip-tags-go"
	"github.com/muesli/reflow/wordwrap"
)

const (
	indicatorDecrypted = "🛡"
	indicatorPlain     = "🔓"
)

// Printer writes one line per text message to out.
type Printer struct {
	out                io.Writer
	wrap               int
	syntaxHighlighting string
}

func NewPrinter(out io.Writer, cfg config.ConsoleConfig) *Printer {
	return &Printer{
		out:                out,
		wrap:               cfg.Wrap,
		syntaxHighlighting: cfg.SyntaxHighlighting,
	}
}

// Handle is the Handler for text messages. Our own messages are skipped.
func (p *Printer) Handle(_ context.Context, event *bridge.Event) {
	msg, ok := event.Data.(*bridge.TextMessageEvent)
	if !ok || msg.Me {
		return
	}

	fmt.Fprintln(p.out, p.Format(msg))
}

// Format renders msg. Every line of a multi-line body carries the
// "[room] indicator sender | " prefix, so one message can never pass for
// another sender's line.
func (p *Printer) Format(msg *bridge.TextMessageEvent) string {
	indicator := indicatorPlain
	if msg.Decrypted {
		indicator = indicatorDecrypted
	}

	sender := msg.SenderName
	if sender == "" {
		sender = msg.Sender
	}

	prefix := fmt.Sprintf("[%s] %s %s | ", sanitize(msg.Room.DisplayName(), false), indicator, sanitize(sender, false))

	lines := p.body(msg)
	for i, line := range lines {
		lines[i] = prefix + line
	}

	return strings.Join(lines, "\n")
}

func (p *Printer) body(msg *bridge.TextMessageEvent) []string {
	text := msg.Body
	if text == "" && msg.FormattedBody != "" {
		text = strip.StripTags(msg.FormattedBody)
	}

	text = sanitize(strings.ReplaceAll(text, "\r\n", "\n"), true)

	if p.wrap > 0 {
		text = wordwrap.String(text, p.wrap)
	}

	lines := strings.Split(text, "\n")

	if p.syntaxHighlighting == "" || (!strings.Contains(text, "```") && !strings.Contains(text, "~~~")) {
		return lines
	}

	codeBlockBackTick := false
	codeBlockTilde := false
	lexer := ""

	for i, line := range lines {
		lines[i], codeBlockBackTick, codeBlockTilde, lexer = p.formatCodeBlockText(line, codeBlockBackTick, codeBlockTilde, lexer)
	}

	return lines
}

// sanitize replaces control characters sent by remote users, escape
// sequences included, with U+FFFD. Newlines survive only when keepNewlines
// is set, tabs always do.
func sanitize(s string, keepNewlines bool) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' && keepNewlines, r == '\t':
			return r
		case unicode.IsControl(r):
			return unicode.ReplacementChar
		}
		return r
	}, s)
}

func (p *Printer) formatCodeBlockText(text string, codeBlockBackTick bool, codeBlockTilde bool, lexer string) (string, bool, bool, string) {
	if strings.HasPrefix(text, "```") && !codeBlockTilde {
		codeBlockBackTick = !codeBlockBackTick
		if codeBlockBackTick {
			lexer = strings.TrimSpace(strings.TrimPrefix(text, "```"))
		}
		return text, codeBlockBackTick, codeBlockTilde, lexer
	}
	if strings.HasPrefix(text, "~~~") && !codeBlockBackTick {
		codeBlockTilde = !codeBlockTilde
		if codeBlockTilde {
			lexer = strings.TrimSpace(strings.TrimPrefix(text, "~~~"))
		}
		return text, codeBlockBackTick, codeBlockTilde, lexer
	}

	if !(codeBlockBackTick || codeBlockTilde) || lexer == "" {
		return text, codeBlockBackTick, codeBlockTilde, lexer
	}

	formatter := "terminal256"
	style := "pygments"
	v := strings.SplitN(p.syntaxHighlighting, ":", 2)
	if len(v) == 2 {
		formatter = v[0]
		style = v[1]
	} else if v[0] != "" {
		formatter = v[0]
	}

	var b bytes.Buffer
	err := quick.Highlight(&b, text, lexer, formatter, style)
	if err == nil {
		// text is a single line, chroma appends a newline that may sit before a reset code
		text = strings.ReplaceAll(b.String(), "\n", "")
	}

	return text, codeBlockBackTick, codeBlockTilde, lexer
}
