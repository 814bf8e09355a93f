package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// prompter asks for values on an interactive terminal.
type prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{scanner: bufio.NewScanner(in), out: out}
}

// Ask prints label and returns the trimmed answer, or def when the answer
// is empty or input is exhausted.
func (p *prompter) Ask(label, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	if !p.scanner.Scan() {
		return def
	}
	if v := strings.TrimSpace(p.scanner.Text()); v != "" {
		return v
	}
	return def
}

// Fill asks for every key in keys that input does not already hold.
func (p *prompter) Fill(input map[string]string, keys ...string) {
	for _, k := range keys {
		if input[k] != "" {
			continue
		}
		if v := p.Ask(k, ""); v != "" {
			input[k] = v
		}
	}
}
