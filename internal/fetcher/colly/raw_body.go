package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

type rawBodyKey struct{}

// rawBody holds the status and body of the last response a request saw,
// before colly re-encodes the body to UTF-8.
type rawBody struct {
	status int
	body   []byte
	ok     bool
}

func withRawBody(ctx context.Context, raw *rawBody) context.Context {
	return context.WithValue(ctx, rawBodyKey{}, raw)
}

// rawBodyTransport copies each response body into the rawBody carried by the
// request context. Redirect hops overwrite earlier hops, so the final
// response wins.
type rawBodyTransport struct {
	next http.RoundTripper
}

func (t rawBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	raw, _ := req.Context().Value(rawBodyKey{}).(*rawBody)
	if raw == nil {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close response body: %w", closeErr)
	}
	raw.status, raw.body, raw.ok = resp.StatusCode, body, true

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}
