package observability

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns an http.Client instrumented with otelhttp transport,
// used as the base client for every outbound call the core makes: model
// providers, Brave/Serper search, the weather/geocoding/what3words tools.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = otelhttp.NewTransport(rt)
	return base
}

// WithHeaders wraps client's transport so every outbound request carries the
// given headers unless the request already set that header explicitly. The
// built-in tools do not use it: Brave, Serper and what3words each set their
// own auth header or key on the request.
func WithHeaders(client *http.Client, headers map[string]string) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	out := *client
	out.Transport = headerTransport{base: rt, headers: headers}
	return &out
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := false
	for k, v := range h.headers {
		if req.Header.Get(k) != "" {
			continue
		}
		if !cloned {
			req = req.Clone(req.Context())
			cloned = true
		}
		req.Header.Set(k, v)
	}
	return h.base.RoundTrip(req)
}
