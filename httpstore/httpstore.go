// Package httpstore implements a cachefront storage adapter that talks to a
// remote httpapi server with resty. It lets one durable cache instance back
// several processes without sharing a database: expiration decisions stay
// local in each process's cache front, storage lives behind the API.
package httpstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/okiliz/cachefront"
	"github.com/okiliz/cachefront/codec"
)

var ErrMissingBaseURL = errors.New("httpstore: base URL is required")

// Options configures the HTTP client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// Store implements cachefront.Store against an httpapi server.
type Store[V any] struct {
	client *resty.Client
	codec  codec.Codec[V]
}

type Option[V any] func(*Store[V])

// WithCodec overrides the default JSON codec for value payloads.
func WithCodec[V any](c codec.Codec[V]) Option[V] {
	return func(s *Store[V]) {
		if c != nil {
			s.codec = c
		}
	}
}

type entryPayload struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// New builds a remote store client.
func New[V any](opts Options, storeOpts ...Option[V]) (*Store[V], error) {
	if opts.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	rc := resty.New().SetBaseURL(opts.BaseURL)
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	if len(opts.Headers) > 0 {
		rc.SetHeaders(opts.Headers)
	}

	s := &Store[V]{client: rc, codec: codec.JSON[V]{}}
	for _, opt := range storeOpts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Store[V]) Set(ctx context.Context, key string, value V, meta cachefront.EntryMeta) error {
	payload, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("httpstore: encode value: %w", err)
	}
	body := entryPayload{Key: key, Value: payload, ExpiresAt: meta.ExpiresAt}
	resp, err := s.client.R().SetContext(ctx).SetBody(body).Put(entryPath(key))
	return checkResponse("set", resp, err)
}

func (s *Store[V]) Get(ctx context.Context, key string) (cachefront.Entry[V], bool, error) {
	var payload entryPayload
	resp, err := s.client.R().SetContext(ctx).SetResult(&payload).Get(entryPath(key))
	if err != nil {
		return cachefront.Entry[V]{}, false, fmt.Errorf("httpstore: get: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return cachefront.Entry[V]{}, false, nil
	}
	if resp.IsError() {
		return cachefront.Entry[V]{}, false, statusError("get", resp)
	}
	value, err := s.codec.Unmarshal(payload.Value)
	if err != nil {
		return cachefront.Entry[V]{}, false, fmt.Errorf("httpstore: decode value: %w", err)
	}
	return cachefront.Entry[V]{Key: payload.Key, Value: value, ExpiresAt: payload.ExpiresAt}, true, nil
}

func (s *Store[V]) GetMeta(ctx context.Context, key string) (cachefront.EntryMeta, bool, error) {
	var meta cachefront.EntryMeta
	resp, err := s.client.R().SetContext(ctx).SetResult(&meta).Get(entryPath(key) + "/meta")
	if err != nil {
		return cachefront.EntryMeta{}, false, fmt.Errorf("httpstore: get meta: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return cachefront.EntryMeta{}, false, nil
	}
	if resp.IsError() {
		return cachefront.EntryMeta{}, false, statusError("get meta", resp)
	}
	return meta, true, nil
}

func (s *Store[V]) Delete(ctx context.Context, key string) error {
	resp, err := s.client.R().SetContext(ctx).Delete(entryPath(key))
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return checkResponse("delete", resp, err)
}

func (s *Store[V]) Clear(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Delete("/v1/entries")
	return checkResponse("clear", resp, err)
}

func (s *Store[V]) Meta(ctx context.Context) ([]cachefront.EntryMeta, error) {
	var metas []cachefront.EntryMeta
	resp, err := s.client.R().SetContext(ctx).SetResult(&metas).Get("/v1/entries")
	if err := checkResponse("meta", resp, err); err != nil {
		return nil, err
	}
	return metas, nil
}

func entryPath(key string) string {
	return "/v1/entries/" + url.PathEscape(key)
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("httpstore: %s: %w", op, err)
	}
	if resp.IsError() {
		return statusError(op, resp)
	}
	return nil
}

func statusError(op string, resp *resty.Response) error {
	return fmt.Errorf("httpstore: %s: http %d: %s", op, resp.StatusCode(), strings.TrimSpace(resp.String()))
}
