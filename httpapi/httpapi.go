// Package httpapi exposes a byte-valued cachefront store over a small JSON
// HTTP protocol, the one the httpstore adapter speaks:
//
//	GET    /v1/entries            list metadata for all entries
//	DELETE /v1/entries            clear the store
//	GET    /v1/entries/:key       fetch one entry (404 when absent)
//	PUT    /v1/entries/:key       store one entry
//	DELETE /v1/entries/:key       delete one entry
//	GET    /v1/entries/:key/meta  fetch metadata only (404 when absent)
//
// Values travel base64-encoded inside JSON; keys are path-escaped. The API
// serves raw store entries and applies no TTL logic of its own; expiration
// stays with the cache front on the client side.
package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/okiliz/cachefront"
)

// API serves the cache store protocol over HTTP.
type API struct {
	store cachefront.Store[[]byte]
	echo  *echo.Echo
}

type Option func(*API)

// WithMiddleware installs additional echo middleware ahead of the routes.
func WithMiddleware(mw ...echo.MiddlewareFunc) Option {
	return func(a *API) { a.echo.Use(mw...) }
}

type entryPayload struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// New builds an API around the given byte store.
func New(store cachefront.Store[[]byte], opts ...Option) *API {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	a := &API{store: store, echo: e}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	e.GET("/v1/entries", a.listMeta)
	e.DELETE("/v1/entries", a.clear)
	e.GET("/v1/entries/:key", a.getEntry)
	e.PUT("/v1/entries/:key", a.putEntry)
	e.DELETE("/v1/entries/:key", a.deleteEntry)
	e.GET("/v1/entries/:key/meta", a.getMeta)

	return a
}

// Handler returns the API as an http.Handler.
func (a *API) Handler() http.Handler { return a.echo }

// Start serves the API on addr until ctx is done, then shuts down
// gracefully.
func (a *API) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.echo.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (a *API) getEntry(c echo.Context) error {
	key, err := entryKey(c)
	if err != nil {
		return err
	}
	entry, ok, err := a.store.Get(c.Request().Context(), key)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "entry not found")
	}
	return c.JSON(http.StatusOK, entryPayload{
		Key:       entry.Key,
		Value:     entry.Value,
		ExpiresAt: entry.ExpiresAt,
	})
}

func (a *API) putEntry(c echo.Context) error {
	key, err := entryKey(c)
	if err != nil {
		return err
	}
	var payload entryPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry payload")
	}
	meta := cachefront.EntryMeta{Key: key, ExpiresAt: payload.ExpiresAt}
	if err := a.store.Set(c.Request().Context(), key, payload.Value, meta); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) deleteEntry(c echo.Context) error {
	key, err := entryKey(c)
	if err != nil {
		return err
	}
	if err := a.store.Delete(c.Request().Context(), key); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) getMeta(c echo.Context) error {
	key, err := entryKey(c)
	if err != nil {
		return err
	}
	meta, ok, err := a.store.GetMeta(c.Request().Context(), key)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "entry not found")
	}
	return c.JSON(http.StatusOK, meta)
}

func (a *API) listMeta(c echo.Context) error {
	metas, err := a.store.Meta(c.Request().Context())
	if err != nil {
		return err
	}
	if metas == nil {
		metas = []cachefront.EntryMeta{}
	}
	return c.JSON(http.StatusOK, metas)
}

func (a *API) clear(c echo.Context) error {
	if err := a.store.Clear(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func entryKey(c echo.Context) (string, error) {
	key, err := url.PathUnescape(c.Param("key"))
	if err != nil || key == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid entry key")
	}
	return key, nil
}
