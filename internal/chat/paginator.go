package chat

import (
	"errors"
	"fmt"

	"go.minekube.com/common/minecraft/component"
)

// ErrNoSuchPage is returned when a requested page is outside 1..Pages().
var ErrNoSuchPage = errors.New("no such page")

// Paginator splits lines into fixed-size pages, each framed by an optional
// header and footer.
type Paginator struct {
	size   int
	lines  []component.Component
	Header []component.Component
	Footer []component.Component
}

// NewPaginator creates a paginator over lines.
//
// Precondition: size must be greater than zero.
func NewPaginator(size int, lines []component.Component) *Paginator {
	if size <= 0 {
		panic(fmt.Sprintf("chat.NewPaginator: page size must be positive, got %d", size))
	}
	return &Paginator{size: size, lines: lines}
}

// PageSize returns the number of body lines per page.
func (p *Paginator) PageSize() int { return p.size }

// Pages returns the number of pages; an empty paginator has one empty page.
func (p *Paginator) Pages() int {
	if len(p.lines) == 0 {
		return 1
	}
	return (len(p.lines) + p.size - 1) / p.size
}

// Page returns header, body and footer lines of page n, counting from 1.
//
// Postcondition: Returns ErrNoSuchPage when n is outside 1..Pages().
func (p *Paginator) Page(n int) ([]component.Component, error) {
	if n < 1 || n > p.Pages() {
		return nil, fmt.Errorf("%w: %d of %d", ErrNoSuchPage, n, p.Pages())
	}
	start := (n - 1) * p.size
	end := min(start+p.size, len(p.lines))

	out := make([]component.Component, 0, len(p.Header)+p.size+len(p.Footer))
	out = append(out, p.Header...)
	out = append(out, p.lines[start:end]...)
	out = append(out, p.Footer...)
	return out, nil
}

// Send delivers page n to r, one message per line.
func (p *Paginator) Send(r Recipient, n int) error {
	lines, err := p.Page(n)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if err := r.SendMessage(line); err != nil {
			return err
		}
	}
	return nil
}
