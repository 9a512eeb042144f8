package groups

import (
	"context"

	"golang.org/x/time/rate"

	"editgate/internal/domain"
	editgatesdk "editgate/sdk/go"
)

// Client looks groups up through the remote API.
type Client struct {
	API *editgatesdk.Client
	// Limiter paces queries to the API; nil means no limit.
	Limiter *rate.Limiter
}

func NewClient(api *editgatesdk.Client) Client {
	return Client{API: api}
}

// WithRateLimit returns a copy of c that sends at most perSecond queries a
// second, allowing bursts of burst. A non-positive rate disables the limit.
func (c Client) WithRateLimit(perSecond float64, burst int) Client {
	if perSecond <= 0 {
		c.Limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

func (c Client) Groups(ctx context.Context, q Query) ([]domain.Group, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, &LookupError{Query: q, Err: err}
		}
	}
	res, err := c.API.Groups(ctx, editgatesdk.GroupQuery{
		Regex:     q.Regex,
		Prefix:    q.Prefix,
		ID:        q.ID,
		Signatory: q.Signatory,
	})
	if err != nil {
		return nil, &LookupError{Query: q, Err: err}
	}
	out := make([]domain.Group, 0, len(res))
	for _, g := range res {
		out = append(out, domain.Group{ID: g.ID, Members: g.Members})
	}
	return out, nil
}
