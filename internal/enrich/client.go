// Package enrich resolves card image URLs from an external card catalog and
// writes them back into the store. Cards whose lookup fails keep the
// placeholder image and are retried on the next pass.
package enrich

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/deckhaven/cardsync/internal/resilience"
)

// ErrNotFound marks a permanent lookup miss. The card keeps its placeholder
// and is not retried within the pass.
var ErrNotFound = eris.New("enrich: card not found in catalog")

// Client fetches card imagery metadata from a Scryfall-compatible API.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// ClientOptions tunes the lookup client.
type ClientOptions struct {
	BaseURL     string
	UserAgent   string
	RatePerSec  int
	MaxAttempts int
}

// NewClient builds a rate-limited lookup client.
func NewClient(opts ClientOptions) *Client {
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 10
	}

	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(30 * time.Second)
	if opts.UserAgent != "" {
		httpClient.SetHeader("User-Agent", opts.UserAgent)
	}

	retry := resilience.DefaultRetryConfig()
	if opts.MaxAttempts > 0 {
		retry.MaxAttempts = opts.MaxAttempts
	}
	retry.OnRetry = resilience.RetryLogger("catalog", "lookup_image")

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec),
		retry:   retry,
	}
}

// catalogCard is the subset of the catalog response the enricher needs.
// Double-faced cards carry imagery per face instead of at the top level.
type catalogCard struct {
	ImageURIs *imageURIs `json:"image_uris"`
	CardFaces []struct {
		ImageURIs *imageURIs `json:"image_uris"`
	} `json:"card_faces"`
}

type imageURIs struct {
	Normal string `json:"normal"`
	Large  string `json:"large"`
}

func (c catalogCard) imageURL() string {
	if c.ImageURIs != nil && c.ImageURIs.Normal != "" {
		return c.ImageURIs.Normal
	}
	for _, face := range c.CardFaces {
		if face.ImageURIs != nil && face.ImageURIs.Normal != "" {
			return face.ImageURIs.Normal
		}
	}
	return ""
}

// LookupImage resolves the image URL for a catalog card id. Rate limit
// violations and server errors are retried with backoff; a 404 or a card
// without imagery returns ErrNotFound.
func (c *Client) LookupImage(ctx context.Context, catalogID string) (string, error) {
	if catalogID == "" {
		return "", ErrNotFound
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "enrich: rate limiter wait")
		}

		var card catalogCard
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&card).
			SetPathParam("id", catalogID).
			Get("/cards/{id}")
		if err != nil {
			return "", eris.Wrapf(err, "enrich: lookup %s", catalogID)
		}

		switch {
		case resp.StatusCode() == 404:
			return "", ErrNotFound
		case resilience.IsTransientHTTPStatus(resp.StatusCode()):
			return "", resilience.NewTransientError(
				eris.Errorf("enrich: lookup %s: status %d", catalogID, resp.StatusCode()),
				resp.StatusCode())
		case resp.IsError():
			return "", eris.Errorf("enrich: lookup %s: status %d", catalogID, resp.StatusCode())
		}

		url := card.imageURL()
		if url == "" {
			return "", ErrNotFound
		}
		return url, nil
	})
}
