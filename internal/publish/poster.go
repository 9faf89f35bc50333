// Package publish delivers a finished review to its audience.
package publish

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Poster delivers a review body.
type Poster interface {
	Post(ctx context.Context, body string) error
}

// Target identifies a pull request or issue.
type Target struct {
	Owner  string
	Repo   string
	Number int
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s#%d", t.Owner, t.Repo, t.Number)
}

var targetPattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)#([0-9]+)$`)

// ParseTarget parses "owner/repo#number".
func ParseTarget(s string) (Target, error) {
	m := targetPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Target{}, fmt.Errorf("invalid target %q: expected owner/repo#number", s)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return Target{}, fmt.Errorf("invalid target %q: bad number", s)
	}
	return Target{Owner: m[1], Repo: m[2], Number: n}, nil
}

// WriterPoster writes the review to w.
type WriterPoster struct {
	w io.Writer
}

// NewWriterPoster creates a WriterPoster.
func NewWriterPoster(w io.Writer) *WriterPoster {
	return &WriterPoster{w: w}
}

// Post writes body followed by a newline.
func (p *WriterPoster) Post(ctx context.Context, body string) error {
	if _, err := io.WriteString(p.w, body); err != nil {
		return fmt.Errorf("failed to write review: %w", err)
	}
	if !strings.HasSuffix(body, "\n") {
		if _, err := io.WriteString(p.w, "\n"); err != nil {
			return fmt.Errorf("failed to write review: %w", err)
		}
	}
	return nil
}
