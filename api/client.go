package api

import (
	"context"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 30 * time.Second
	rateLimitAttempts = 3
)

// Client is the Buildstate FM REST client. All resource services hang
// off it and share one transport, auth token and validator.
type Client struct {
	http     *resty.Client
	log      *zap.SugaredLogger
	validate *validator.Validate

	Properties      *PropertiesService
	Units           *UnitsService
	Tenants         *TenantsService
	Jobs            *JobsService
	Inspections     *InspectionsService
	ServiceRequests *ServiceRequestsService
	Billing         *BillingService
	Blog            *BlogService
	Team            *TeamService
	Uploads         *UploadsService
}

// Option configures a Client.
type Option func(*Client)

// OptionSetLogger sets the client logger.
func OptionSetLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

// OptionSetTimeout sets the per-request timeout.
func OptionSetTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// OptionSetTransport overrides the underlying round tripper, used by
// tests to stub the API.
func OptionSetTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.SetTransport(rt) }
}

// NewClient creates a client for the given base URL and bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	hc := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetHeader("Accept", "application/json").
		SetTimeout(defaultTimeout)

	c := &Client{
		http:     hc,
		log:      zap.NewNop().Sugar(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Properties = &PropertiesService{c}
	c.Units = &UnitsService{c}
	c.Tenants = &TenantsService{c}
	c.Jobs = &JobsService{c}
	c.Inspections = &InspectionsService{c}
	c.ServiceRequests = &ServiceRequestsService{c}
	c.Billing = &BillingService{c}
	c.Blog = &BlogService{c}
	c.Team = &TeamService{c}
	c.Uploads = &UploadsService{c}
	return c
}

// Ping checks connectivity and auth against the API health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", http.MethodGet, "/health", nil, nil)
	return err
}

// checkPayload runs struct validation before any network call. A
// failure here is a KindValidation error: nothing was sent and nothing
// was cached.
func (c *Client) checkPayload(op string, payload any) error {
	if err := c.validate.Struct(payload); err != nil {
		return newValidationError(op, err)
	}
	return nil
}

// ValidateRequest checks a request payload without sending anything.
// Mutation flows call it up front so an invalid payload is rejected
// before any optimistic cache write, not merely before the network
// call.
func (c *Client) ValidateRequest(op string, payload any) error {
	return c.checkPayload(op, payload)
}

// do performs one request and returns the raw body. Non-2xx responses
// are classified; 429 is retried a bounded number of times honoring
// the server's Retry-After before surfacing the hint to the caller.
// Other failures are never retried here, the mutation layer owns
// rollback and the user owns the retry decision.
func (c *Client) do(ctx context.Context, op, method, path string, body any, query map[string]string) ([]byte, error) {
	var out []byte

	err := retry.Do(
		func() error {
			req := c.http.R().SetContext(ctx)
			if body != nil {
				req.SetHeader("Content-Type", "application/json").SetBody(body)
			}
			if query != nil {
				req.SetQueryParams(query)
			}

			resp, err := req.Execute(method, path)
			if err != nil {
				return newTransportError(op, err)
			}
			if resp.IsError() {
				return newStatusError(op, resp.StatusCode(), serverMessage(resp.Body()), resp.Header())
			}
			out = resp.Body()
			return nil
		},
		retry.Attempts(rateLimitAttempts),
		retry.RetryIf(IsRetryable),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			if d := RetryAfterHint(err); d > 0 {
				return d
			}
			return retry.BackOffDelay(n, err, config)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		c.log.Debugw("request failed", "op", op, "method", method, "path", path, "error", err)
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, op, path string, query map[string]string) ([]byte, error) {
	return c.do(ctx, op, http.MethodGet, path, nil, query)
}

func (c *Client) post(ctx context.Context, op, path string, body any) ([]byte, error) {
	return c.do(ctx, op, http.MethodPost, path, body, nil)
}

func (c *Client) put(ctx context.Context, op, path string, body any) ([]byte, error) {
	return c.do(ctx, op, http.MethodPut, path, body, nil)
}

func (c *Client) delete(ctx context.Context, op, path string) ([]byte, error) {
	return c.do(ctx, op, http.MethodDelete, path, nil, nil)
}
