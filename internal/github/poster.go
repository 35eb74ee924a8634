package github

import (
	"context"
	"fmt"
	"io"
)

// Poster publishes the check comment.
type Poster interface {
	Post(ctx context.Context, number int, marker, body string) (string, error)
}

// Post upserts the sticky comment and returns its URL.
func (c *Client) Post(ctx context.Context, number int, marker, body string) (string, error) {
	if number <= 0 {
		return "", fmt.Errorf("invalid pull request number %d", number)
	}
	comment, _, err := c.Upsert(ctx, number, marker, body)
	if err != nil {
		return "", err
	}
	return comment.HTMLURL, nil
}

// PrintPoster writes the comment to W instead of posting it.
type PrintPoster struct {
	W io.Writer
}

// Post prints body.
func (p PrintPoster) Post(_ context.Context, _ int, _, body string) (string, error) {
	_, err := io.WriteString(p.W, body)
	return "", err
}

var (
	_ Poster = (*Client)(nil)
	_ Poster = PrintPoster{}
)
