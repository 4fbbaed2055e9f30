package gitlab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/karev/glharvest/internal/metrics"
	"github.com/karev/glharvest/internal/window"
)

const (
	privateTokenHeaderConstant   = "PRIVATE-TOKEN"
	retryAfterHeaderConstant     = "Retry-After"
	rateLimitResetHeaderConstant = "RateLimit-Reset"
	nextPageHeaderConstant       = "X-Next-Page"
	pageQueryParameterConstant   = "page"
	perPageQueryParameterConstant = "per_page"
	responseBodySampleLimitConstant = 512

	// DefaultPerPage matches the maximum page size the GitLab API allows.
	DefaultPerPage = 100

	defaultRequestTimeoutConstant = 30 * time.Second
	defaultInitialBackoffConstant = time.Second
	defaultMaxBackoffConstant     = 30 * time.Second
	defaultMaxRetriesConstant     = 3

	retryLogMessageConstant            = "retrying gitlab request"
	retriesExhaustedErrorTemplate      = "gitlab request to %s failed after %d retries: %w"
	requestBuildErrorTemplateConstant  = "building gitlab request for %s: %w"
	responseDecodeErrorTemplateConstant = "decoding gitlab response from %s: %w"
	authenticationErrorTemplateConstant = "gitlab rejected credentials for %s (status %d): %w"

	logFieldURLConstant     = "url"
	logFieldAttemptConstant = "attempt"
	logFieldStatusConstant  = "status"
	logFieldDelayConstant   = "delay"
)

// ErrAuthentication marks 401/403 responses. No category can succeed once
// credentials are rejected, so callers abort the whole run on it.
var ErrAuthentication = errors.New("authentication rejected")

// APIError is a terminal non-2xx response.
type APIError struct {
	StatusCode int
	BodySample string
}

// Error renders the status code and a bounded response body sample.
func (apiError *APIError) Error() string {
	return fmt.Sprintf("gitlab API error: HTTP %d: %s", apiError.StatusCode, apiError.BodySample)
}

// TimeFilter names the query parameters an endpoint uses for window bounds.
type TimeFilter struct {
	SinceParameter string
	UntilParameter string
}

// Per-endpoint time filter parameter names used by the GitLab API.
var (
	UpdatedTimeFilter = TimeFilter{SinceParameter: "updated_after", UntilParameter: "updated_before"}
	CreatedTimeFilter = TimeFilter{SinceParameter: "created_after", UntilParameter: "created_before"}
	CommitTimeFilter  = TimeFilter{SinceParameter: "since", UntilParameter: "until"}
	EventTimeFilter   = TimeFilter{SinceParameter: "after", UntilParameter: "before"}
)

// Apply sets the filter's window bounds on the query.
func (filter TimeFilter) Apply(query url.Values, collectionWindow window.Window) {
	query.Set(filter.SinceParameter, collectionWindow.StartISO())
	query.Set(filter.UntilParameter, collectionWindow.EndISO())
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	PerPage        int
	Logger         *zap.Logger
}

// Client is the authenticated, retrying GitLab REST client.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	perPage        int
	logger         *zap.Logger
}

// NewClient constructs a Client, applying defaults for unset options. The
// base URL is expected to point at the API root (…/api/v4).
func NewClient(options ClientOptions) *Client {
	requestTimeout := options.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeoutConstant
	}
	maxRetries := options.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetriesConstant
	}
	initialBackoff := options.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = defaultInitialBackoffConstant
	}
	maxBackoff := options.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoffConstant
	}
	perPage := options.PerPage
	if perPage <= 0 || perPage > DefaultPerPage {
		perPage = DefaultPerPage
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:        strings.TrimRight(options.BaseURL, "/"),
		token:          options.Token,
		httpClient:     &http.Client{Timeout: requestTimeout},
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		perPage:        perPage,
		logger:         logger,
	}
}

// GetJSON issues a single GET request and decodes the JSON response.
func (client *Client) GetJSON(executionContext context.Context, path string, query url.Values, destination any) error {
	_, fetchError := client.fetch(executionContext, path, query, destination)
	return fetchError
}

// CollectPages walks an endpoint's page cursor from page 1 and accumulates
// every returned item. Pagination stops on an empty page or an empty
// X-Next-Page header, so it terminates after ceil(total/per_page) pages.
func CollectPages[T any](executionContext context.Context, client *Client, path string, query url.Values) ([]T, error) {
	var collected []T
	for pageNumber := 1; ; pageNumber++ {
		pageQuery := cloneQuery(query)
		pageQuery.Set(pageQueryParameterConstant, strconv.Itoa(pageNumber))
		if len(pageQuery.Get(perPageQueryParameterConstant)) == 0 {
			pageQuery.Set(perPageQueryParameterConstant, strconv.Itoa(client.perPage))
		}

		var page []T
		nextPage, fetchError := client.fetch(executionContext, path, pageQuery, &page)
		if fetchError != nil {
			return nil, fetchError
		}
		if len(page) == 0 {
			break
		}

		collected = append(collected, page...)
		if len(strings.TrimSpace(nextPage)) == 0 {
			break
		}
	}
	return collected, nil
}

// fetch performs one logical GET with bounded retries and decodes the body
// into destination. It returns the X-Next-Page header value for paginated
// callers.
func (client *Client) fetch(executionContext context.Context, path string, query url.Values, destination any) (string, error) {
	requestURL := client.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var lastFailure error
	var lastResponseHeader http.Header
	var lastStatusCode int

	for attempt := 0; attempt <= client.maxRetries; attempt++ {
		if attempt > 0 {
			delay := client.retryDelay(attempt, lastStatusCode, lastResponseHeader)
			client.logger.Debug(
				retryLogMessageConstant,
				zap.String(logFieldURLConstant, requestURL),
				zap.Int(logFieldAttemptConstant, attempt),
				zap.Int(logFieldStatusConstant, lastStatusCode),
				zap.Duration(logFieldDelayConstant, delay),
			)
			metrics.RequestRetriesTotal.Inc()

			waitTimer := time.NewTimer(delay)
			select {
			case <-executionContext.Done():
				waitTimer.Stop()
				return "", executionContext.Err()
			case <-waitTimer.C:
			}
		}

		request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, requestURL, nil)
		if requestError != nil {
			return "", fmt.Errorf(requestBuildErrorTemplateConstant, requestURL, requestError)
		}
		request.Header.Set(privateTokenHeaderConstant, client.token)

		requestStart := time.Now()
		response, transportError := client.httpClient.Do(request)
		metrics.RequestLatencySeconds.Observe(time.Since(requestStart).Seconds())
		if transportError != nil {
			if executionContext.Err() != nil {
				return "", executionContext.Err()
			}
			lastFailure = transportError
			lastStatusCode = 0
			lastResponseHeader = nil
			continue
		}

		responseBody, readError := io.ReadAll(response.Body)
		closeError := response.Body.Close()
		if readError != nil {
			lastFailure = readError
			lastStatusCode = response.StatusCode
			lastResponseHeader = response.Header
			continue
		}
		if closeError != nil {
			lastFailure = closeError
			continue
		}

		switch {
		case response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices:
			metrics.PagesFetchedTotal.Inc()
			if decodeError := json.Unmarshal(responseBody, destination); decodeError != nil {
				return "", fmt.Errorf(responseDecodeErrorTemplateConstant, requestURL, decodeError)
			}
			return response.Header.Get(nextPageHeaderConstant), nil

		case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
			return "", fmt.Errorf(authenticationErrorTemplateConstant, requestURL, response.StatusCode, ErrAuthentication)

		case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= http.StatusInternalServerError:
			lastFailure = &APIError{StatusCode: response.StatusCode, BodySample: sampleBody(responseBody)}
			lastStatusCode = response.StatusCode
			lastResponseHeader = response.Header
			continue

		default:
			return "", &APIError{StatusCode: response.StatusCode, BodySample: sampleBody(responseBody)}
		}
	}

	return "", fmt.Errorf(retriesExhaustedErrorTemplate, requestURL, client.maxRetries, lastFailure)
}

// retryDelay prefers the server-advertised wait over exponential backoff:
// Retry-After carries seconds, RateLimit-Reset a unix timestamp.
func (client *Client) retryDelay(attempt int, statusCode int, responseHeader http.Header) time.Duration {
	if statusCode == http.StatusTooManyRequests && responseHeader != nil {
		if retryAfterSeconds, parseError := strconv.Atoi(responseHeader.Get(retryAfterHeaderConstant)); parseError == nil && retryAfterSeconds > 0 {
			return time.Duration(retryAfterSeconds) * time.Second
		}
		if resetUnix, parseError := strconv.ParseInt(responseHeader.Get(rateLimitResetHeaderConstant), 10, 64); parseError == nil {
			untilReset := time.Until(time.Unix(resetUnix, 0))
			if untilReset > 0 && untilReset <= client.maxBackoff {
				return untilReset
			}
		}
	}

	delay := client.initialBackoff << (attempt - 1)
	if delay > client.maxBackoff {
		delay = client.maxBackoff
	}
	return delay
}

func sampleBody(responseBody []byte) string {
	if len(responseBody) > responseBodySampleLimitConstant {
		responseBody = responseBody[:responseBodySampleLimitConstant]
	}
	return string(responseBody)
}

func cloneQuery(query url.Values) url.Values {
	cloned := url.Values{}
	for key, values := range query {
		for _, value := range values {
			cloned.Add(key, value)
		}
	}
	return cloned
}
