package httputil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/xeptore/skylocker/constant"
)

// ErrNetwork marks transport-level failures. Callers may retry at their own
// discretion; the transport itself already retried transient failures.
var ErrNetwork = errors.New("network failure")

const maxSendRetries = 3

var userAgent = "skylocker/" + constant.Version

// Transport performs HTTP round trips for the client: cookie jar, request
// pacing, cancellation, and transient-failure retry. Everything above it
// only knows "send request, get bytes/stream back, fail with ErrNetwork".
type Transport struct {
	http    *http.Client
	limiter *rate.Limiter
}

func NewTransport(requestsPerSecond float64) (*Transport, error) {
	jar, err := cookiejar.New(nil)
	if nil != err {
		return nil, fmt.Errorf("failed to create cookie jar: %v", err)
	}

	return &Transport{
		http:    &http.Client{Jar: jar}, //nolint:exhaustruct
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}, nil
}

type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Send issues a request whose body is fully buffered, retrying transport
// failures with exponential backoff. Non-2xx statuses are returned to the
// caller untouched; status interpretation is not the transport's business.
func (t *Transport) Send(ctx context.Context, req Request) (*Response, error) {
	if err := t.limiter.Wait(ctx); nil != err {
		return nil, fmt.Errorf("failed to wait for request slot: %w", err)
	}

	var resp *Response
	operation := func() error {
		r, err := t.send(ctx, req)
		if nil != err {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}

			return err
		}
		resp = r

		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSendRetries),
		ctx,
	)
	if err := backoff.Retry(operation, bo); nil != err {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	return resp, nil
}

func (t *Transport) send(ctx context.Context, req Request) (r *Response, err error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if nil != err {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := t.http.Do(httpReq)
	if nil != err {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close response body: %v", closeErr))
		}
	}()

	respBytes, err := io.ReadAll(resp.Body)
	if nil != err {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   respBytes,
	}, nil
}

// SendStream issues a request whose body is streamed from r without
// buffering and returns the raw response. No retry is performed: a streamed
// body cannot be replayed. Used for binary track transfer.
func (t *Transport) SendStream(
	ctx context.Context,
	method, reqURL string,
	header http.Header,
	r io.Reader,
	contentLength int64,
	timeout time.Duration,
) (resp *Response, err error) {
	if err := t.limiter.Wait(ctx); nil != err {
		return nil, fmt.Errorf("failed to wait for request slot: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, r)
	if nil != err {
		return nil, fmt.Errorf("failed to create stream request: %v", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.ContentLength = contentLength
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := t.http.Do(httpReq)
	if nil != err {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close response body: %v", closeErr))
		}
	}()

	respBytes, err := io.ReadAll(httpResp.Body)
	if nil != err {
		return nil, fmt.Errorf("%w: read stream response body: %v", ErrNetwork, err)
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   respBytes,
	}, nil
}
