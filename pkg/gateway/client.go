package gateway

import (
	"crypto/rand"
	"math"
	"math/big"
	"net/http"
	"time"
)

// retryingClient wraps http.Client with bounded retries and jittered
// exponential backoff. Provider APIs and blockchain nodes are both
// flaky enough that a single attempt is not a verdict.
type retryingClient struct {
	client     *http.Client
	maxRetries int
}

func newRetryingClient(timeout time.Duration) *retryingClient {
	return &retryingClient{
		client:     &http.Client{Timeout: timeout},
		maxRetries: 3,
	}
}

// Do executes the request, retrying transport errors and 5xx responses.
// Request bodies must be replayable (GetBody set), which is true for all
// bytes.Reader-backed requests this package issues.
func (c *retryingClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}

		resp, err = c.client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if i == c.maxRetries {
			break
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		// base * 2^i plus up to 50ms jitter
		backoff := time.Duration(math.Pow(2, float64(i))) * 100 * time.Millisecond
		jitter := time.Duration(0)
		if n, jerr := rand.Int(rand.Reader, big.NewInt(50)); jerr == nil {
			jitter = time.Duration(n.Int64()) * time.Millisecond
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(backoff + jitter):
		}
	}
	return resp, err
}
