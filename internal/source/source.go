// Package source defines the article source the crawl engine reads from.
package source

import (
	"context"
)

// Article is a fetched encyclopedia article.
type Article struct {
	Title string
	Text  string
	// Links holds outbound link titles in the order the source lists them.
	Links []string
}

// Source fetches articles by title. Implementations return an error
// wrapping errors.ErrArticleNotFound when the title does not exist.
type Source interface {
	Fetch(ctx context.Context, title string) (*Article, error)
}
