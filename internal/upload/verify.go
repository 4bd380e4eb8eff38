package upload

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// Check is the reachability of one delivered URL.
type Check struct {
	URL        string `json:"url"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Verifier confirms delivered assets are publicly reachable.
type Verifier struct {
	client *resty.Client
}

func NewVerifier(timeout time.Duration) *Verifier {
	return &Verifier{client: resty.New().SetTimeout(timeout)}
}

// Verify issues a HEAD request per URL, in order.
func (v *Verifier) Verify(ctx context.Context, urls []string) []Check {
	out := make([]Check, 0, len(urls))
	for _, u := range urls {
		c := Check{URL: u}
		resp, err := v.client.R().SetContext(ctx).Head(u)
		if err != nil {
			c.Error = err.Error()
		} else {
			c.StatusCode = resp.StatusCode()
			c.OK = resp.IsSuccess()
		}
		out = append(out, c)
	}
	return out
}

// AllOK reports whether every check passed.
func AllOK(checks []Check) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}
