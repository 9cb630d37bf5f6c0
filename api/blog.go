package api

import (
	"context"

	"github.com/buildstate/fm-sync/core"
)

// BlogService reads the public blog. Posts are cursor-paginated.
type BlogService struct {
	c *Client
}

func (s *BlogService) Posts(ctx context.Context, cursor string) (core.Collection, error) {
	const op = "blog.posts"
	var query map[string]string
	if cursor != "" {
		query = map[string]string{"cursor": cursor}
	}
	body, err := s.c.get(ctx, op, "/blog/posts", query)
	if err != nil {
		return core.Collection{}, err
	}
	return s.c.decodeList(op, body, "posts")
}

func (s *BlogService) Post(ctx context.Context, slug string) (core.Doc, error) {
	const op = "blog.post"
	body, err := s.c.get(ctx, op, "/blog/posts/"+slug, nil)
	if err != nil {
		return nil, err
	}
	return s.c.decodeDoc(op, body, "post")
}
