package fetch

import (
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// NewHTTPClient builds the resty client used for plain fetches and the
// Apify API: cookie jar, Cloudflare bypass transport, a browser
// user-agent, and a polite rate limit.
func NewHTTPClient(userAgent string, ratePerSec float64, timeout time.Duration) *resty.Client {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err == nil {
		client.SetCookieJar(jar)
	}
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", userAgent)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	if ratePerSec > 0 {
		// Burst matches the rate so requests queue instead of failing.
		limiter := rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	return client
}
