package pagination

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// DefaultMaxPages bounds a pagination chain when the caller does not.
const DefaultMaxPages = 50

var (
	// ErrTooManyPages is returned when a chain hits the page ceiling
	// while the API still advertises a continuation token.
	ErrTooManyPages = errors.New("pagination: page ceiling reached")

	// ErrDone is returned by NextPage after the sequence has ended.
	ErrDone = errors.New("pagination: sequence exhausted")
)

// FetchFunc returns one page of records. The first call receives an
// empty cursor; every later call receives the token from the previous
// page. An empty nextCursor ends the sequence.
type FetchFunc[T any] func(ctx context.Context, cursor string, page int) (records []T, nextCursor string, err error)

// Page is one fetched page of a chain.
type Page[T any] struct {
	// Number is 1-based.
	Number int

	Records []T

	// Cursor continues the chain; empty on the final page.
	Cursor string
}

// Pager walks one cursor chain lazily. A chain is finite, strictly
// sequential, and not restartable. Pager is not safe for concurrent
// use.
type Pager[T any] struct {
	fetch    FetchFunc[T]
	maxPages int

	cursor string
	page   int
	done   bool
}

// NewPager creates a Pager over fetch. maxPages caps the chain length;
// values below 1 use DefaultMaxPages.
func NewPager[T any](fetch FetchFunc[T], maxPages int) *Pager[T] {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Pager[T]{fetch: fetch, maxPages: maxPages}
}

// More reports whether NextPage may yield another page.
func (p *Pager[T]) More() bool {
	return !p.done
}

// NextPage fetches the next page in cursor order. A fetch error ends
// the sequence; pages already yielded stand.
func (p *Pager[T]) NextPage(ctx context.Context) (Page[T], error) {
	if p.done {
		return Page[T]{}, ErrDone
	}

	if p.page >= p.maxPages {
		p.done = true
		log.Warn().
			Int("max_pages", p.maxPages).
			Msg("Pagination stopped at page ceiling")
		return Page[T]{}, fmt.Errorf("%w after %d pages", ErrTooManyPages, p.maxPages)
	}

	p.page++
	records, next, err := p.fetch(ctx, p.cursor, p.page)
	if err != nil {
		p.done = true
		return Page[T]{}, fmt.Errorf("page %d: %w", p.page, err)
	}

	p.cursor = next
	if next == "" {
		p.done = true
	}

	log.Debug().
		Int("page", p.page).
		Int("records", len(records)).
		Bool("more", !p.done).
		Msg("Fetched page")

	return Page[T]{Number: p.page, Records: records, Cursor: next}, nil
}
