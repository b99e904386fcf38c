// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ManuGH/lessoncast/internal/catalog"
	"github.com/ManuGH/lessoncast/internal/hls"
)

// Resolver maps a normalized lesson reference to a Source. Resolvers do not retry.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (Source, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref string) (Source, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, ref string) (Source, error) { return f(ctx, ref) }

// BaseURL resolves to <Base>/lessons/{ref}/master-manifest.
type BaseURL struct {
	Base string
}

// NewBaseURL validates base.
func NewBaseURL(base string) (*BaseURL, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("manifest: base url must be absolute, got %q", base)
	}
	return &BaseURL{Base: strings.TrimRight(base, "/")}, nil
}

func (b *BaseURL) Resolve(_ context.Context, ref string) (Source, error) {
	return Source{
		URL:  catalog.MockManifestURL(b.Base, ref),
		MIME: hls.MIMEType,
	}, nil
}

// Direct resolves from a static table of lesson -> URL.
type Direct struct {
	URLs map[string]string
}

func (d *Direct) Resolve(_ context.Context, ref string) (Source, error) {
	u, ok := d.URLs[ref]
	if !ok || u == "" {
		return Source{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return Source{URL: u, MIME: InferMIME(u)}, nil
}

// Signed decorates another resolver by appending an access token query
// parameter, the way SAS-token proxies expect it.
type Signed struct {
	Next  Resolver
	Param string // default "sig"
	Token func(ctx context.Context, ref string) (string, error)
}

// NewSigned signs every source from next with a static token.
func NewSigned(next Resolver, param, token string) *Signed {
	return &Signed{
		Next:  next,
		Param: param,
		Token: func(context.Context, string) (string, error) { return token, nil },
	}
}

func (s *Signed) Resolve(ctx context.Context, ref string) (Source, error) {
	src, err := s.Next.Resolve(ctx, ref)
	if err != nil {
		return Source{}, err
	}
	tok, err := s.Token(ctx, ref)
	if err != nil {
		return Source{}, fmt.Errorf("manifest: sign %s: %w", ref, err)
	}
	if tok == "" {
		return src, nil
	}
	u, err := url.Parse(src.URL)
	if err != nil {
		return Source{}, fmt.Errorf("manifest: sign %s: %w", ref, err)
	}
	param := s.Param
	if param == "" {
		param = "sig"
	}
	q := u.Query()
	q.Set(param, tok)
	u.RawQuery = q.Encode()
	src.URL = u.String()
	return src, nil
}

// LessonLookup is the part of the catalog the Catalog strategy needs.
type LessonLookup interface {
	Lesson(ctx context.Context, id string) (catalog.Lesson, error)
}

// Catalog resolves through the lesson's video URL in the course catalog.
type Catalog struct {
	Lessons LessonLookup
}

func (c *Catalog) Resolve(ctx context.Context, ref string) (Source, error) {
	l, err := c.Lessons.Lesson(ctx, ref)
	if err != nil {
		if errors.Is(err, catalog.ErrLessonNotFound) {
			return Source{}, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return Source{}, err
	}
	if l.VideoURL == "" {
		return Source{}, fmt.Errorf("%w: lesson %s has no video", ErrNotFound, ref)
	}
	return Source{URL: l.VideoURL, MIME: InferMIME(l.VideoURL)}, nil
}
