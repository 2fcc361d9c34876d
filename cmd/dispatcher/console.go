package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

var errQuit = errors.New("input closed")

// console reads operator input line by line. The same line channel feeds both
// the menu prompts and the run control listener, so no input is lost between
// them.
type console struct {
	lines <-chan string
	out   io.Writer
}

func newConsole(r io.Reader, out io.Writer) *console {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return &console{lines: lines, out: out}
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// ask prints prompt and returns the trimmed next line.
func (c *console) ask(ctx context.Context, prompt string) (string, error) {
	c.printf("%s", prompt)
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", errQuit
		}
		return strings.TrimSpace(line), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// askRequired repeats the prompt until a non-empty answer is given.
func (c *console) askRequired(ctx context.Context, prompt string) (string, error) {
	for {
		v, err := c.ask(ctx, prompt)
		if err != nil || v != "" {
			return v, err
		}
		c.printf("A value is required.\n")
	}
}

// choose lists options and returns the index the operator picked.
func (c *console) choose(ctx context.Context, title string, options []string) (int, error) {
	c.printf("%s\n", title)
	for i, o := range options {
		c.printf("  %d) %s\n", i+1, o)
	}
	for {
		v, err := c.ask(ctx, "Number: ")
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(v)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		c.printf("Invalid choice %q.\n", v)
	}
}

// selectColumns builds the parameter mapping from header numbers picked in
// order. The parameter name is the header itself. An empty answer finishes.
func (c *console) selectColumns(ctx context.Context, headers []string) (model.ColumnMapping, error) {
	c.printf("Columns available:\n")
	for i, h := range headers {
		c.printf("  %d) %s\n", i+1, h)
	}

	var mapping model.ColumnMapping
	selected := map[string]bool{}
	for {
		v, err := c.ask(ctx, "Column number for the next parameter (empty to finish): ")
		if err != nil {
			return nil, err
		}
		if v == "" {
			if len(mapping) == 0 {
				c.printf("Select at least one column.\n")
				continue
			}
			return mapping, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > len(headers) {
			c.printf("Invalid column %q.\n", v)
			continue
		}
		h := headers[n-1]
		if selected[h] {
			c.printf("Column %s already selected.\n", h)
			continue
		}
		selected[h] = true
		mapping = append(mapping, model.ColumnPair{Column: h, Variable: h})
	}
}

// askWorkers reads the worker count. Empty means def.
func (c *console) askWorkers(ctx context.Context, def int) (int, error) {
	for {
		v, err := c.ask(ctx, fmt.Sprintf("Number of workers [%d]: ", def))
		if err != nil {
			return 0, err
		}
		if v == "" {
			return def, nil
		}
		n, err := strconv.Atoi(v)
		if err == nil && n >= 1 {
			return n, nil
		}
		c.printf("Workers must be a number >= 1.\n")
	}
}
