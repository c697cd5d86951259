package normalize

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sw33tLie/cwvcheck/internal/utils"
	"github.com/sw33tLie/cwvcheck/pkg/whttp"
	"github.com/tidwall/sjson"
	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// DefaultProbeTimeout bounds the redirect probe, redirects included.
const DefaultProbeTimeout = 50 * time.Second

type Outcome string

const (
	// OutcomeProbed means the probe answered and CanonicalURL is its final URL.
	OutcomeProbed Outcome = "probed"
	// OutcomeDegraded means the probe failed and CanonicalURL is the slash-ensured input.
	OutcomeDegraded Outcome = "degraded"
)

// Result is an origin ready to be sent to the CrUX API.
type Result struct {
	Input          string
	CanonicalURL   string
	RequestPayload string

	Outcome    Outcome
	ProbeErr   error
	StatusCode int
	Redirected bool
	// CrossSite is set when a redirect lands on another registrable domain.
	CrossSite bool
	Title     string
}

type Normalizer struct {
	client *retryablehttp.Client
}

// New returns a Normalizer probing through client. A nil client gets
// a default one with DefaultProbeTimeout.
func New(client *retryablehttp.Client) *Normalizer {
	if client == nil {
		client, _ = whttp.NewClient(whttp.ClientOptions{Timeout: DefaultProbeTimeout})
	}
	return &Normalizer{client: client}
}

// EnsureTrailingSlash appends "/" to s unless it already ends with one.
func EnsureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// BuildPayload returns the queryRecord request body for origin.
func BuildPayload(origin string) (string, error) {
	return sjson.Set("", "origin", origin)
}

// Resolve probes raw once and returns its canonical origin.
// Probe failures never surface as errors, they degrade the result instead.
func (n *Normalizer) Resolve(ctx context.Context, raw string) (Result, error) {
	res := Result{
		Input:        raw,
		CanonicalURL: EnsureTrailingSlash(raw),
		Outcome:      OutcomeProbed,
	}

	utils.Log.Infof("%s -> checking for redirects", res.CanonicalURL)

	probe, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method: http.MethodGet,
		URL:    res.CanonicalURL,
	}, n.client)

	if err != nil {
		res.Outcome = OutcomeDegraded
		res.ProbeErr = err
		utils.Log.Warnf("Checking for redirects failed, continuing with input URL %s: %v", res.CanonicalURL, err)
	} else {
		res.StatusCode = probe.StatusCode
		res.Title = probe.HTTPTitle
		utils.Log.Debugf("%s answered %d (title: %q)", res.CanonicalURL, probe.StatusCode, probe.HTTPTitle)

		if probe.FinalURL != res.CanonicalURL {
			utils.Log.Infof("%s -> redirected to %s", res.CanonicalURL, probe.FinalURL)
			res.CrossSite = !sameSite(res.CanonicalURL, probe.FinalURL)
			if res.CrossSite {
				utils.Log.Warnf("%s redirects to another site: %s", res.CanonicalURL, probe.FinalURL)
			}
			res.Redirected = true
			res.CanonicalURL = EnsureTrailingSlash(probe.FinalURL)
		}
	}

	res.RequestPayload, err = BuildPayload(res.CanonicalURL)
	if err != nil {
		return res, err
	}
	utils.Log.Debug("CrUX payload: ", res.RequestPayload)
	return res, nil
}

// sameSite compares the registrable domains of two URLs. URLs whose
// domain can't be determined are considered the same site.
func sameSite(a, b string) bool {
	da, okA := registrableDomain(a)
	db, okB := registrableDomain(b)
	if !okA || !okB {
		return true
	}
	return da == db
}

func registrableDomain(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	domain, err := publicsuffix.Domain(strings.ToLower(u.Hostname()))
	if err != nil {
		return "", false
	}
	return domain, true
}
