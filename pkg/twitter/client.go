// Package twitter is a minimal Twitter API v2 client for batched user
// lookups and incremental user-timeline fetches, gated by a shared
// client-side rate limiter.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.twitter.com/2"

	// lookupBatchSize is the API's cap on usernames per lookup call.
	lookupBatchSize = 100

	// pageSize is the API's cap on tweets per timeline page.
	pageSize = 100
)

// Client calls the Twitter API v2 with bearer authentication. All requests
// block on the limiter first, so pagination and batching cannot exceed the
// shared budget.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
}

// NewClient creates a client with the given bearer token and limiter.
func NewClient(token string, limiter *rate.Limiter) (*Client, error) {
	if token == "" {
		return nil, &ConfigError{Message: "bearer token is required"}
	}
	if limiter == nil {
		return nil, &ConfigError{Message: "rate limiter is required"}
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
		limiter:    limiter,
	}, nil
}

// SetBaseURL overrides the API base URL. Used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// LookupUsers resolves usernames to profiles via GET /users/by, splitting the
// input into batches of at most 100. Results and per-user partial errors are
// unioned across batches. An empty input returns an empty result without any
// network call.
func (c *Client) LookupUsers(ctx context.Context, usernames []string) (UsersResult, error) {
	var result UsersResult
	if len(usernames) == 0 {
		return result, nil
	}

	for start := 0; start < len(usernames); start += lookupBatchSize {
		end := start + lookupBatchSize
		if end > len(usernames) {
			end = len(usernames)
		}

		query := url.Values{
			"usernames":   {strings.Join(usernames[start:end], ",")},
			"user.fields": {"public_metrics,profile_image_url"},
		}

		var page usersResponse
		if err := c.get(ctx, "/users/by", query, &page); err != nil {
			return UsersResult{}, err
		}

		result.Users = append(result.Users, page.Data...)
		result.Errors = append(result.Errors, page.Errors...)
	}

	return result, nil
}

// UserTweets fetches the user's timeline from startTime forward via
// GET /users/{id}/tweets, following pagination tokens until the API omits
// one. Tweets and partial errors accumulate across pages; the limiter is
// acquired before every page, not once per call.
func (c *Client) UserTweets(ctx context.Context, userID string, startTime time.Time) (TweetsResult, error) {
	var result TweetsResult
	endpoint := fmt.Sprintf("/users/%s/tweets", userID)

	nextToken := ""
	for {
		query := url.Values{
			"tweet.fields": {"created_at,public_metrics,referenced_tweets"},
			"start_time":   {startTime.UTC().Format(time.RFC3339)},
			"max_results":  {fmt.Sprintf("%d", pageSize)},
		}
		if nextToken != "" {
			query.Set("pagination_token", nextToken)
		}

		var page tweetsResponse
		if err := c.get(ctx, endpoint, query, &page); err != nil {
			return TweetsResult{}, err
		}

		result.Tweets = append(result.Tweets, page.Data...)
		result.Errors = append(result.Errors, page.Errors...)

		if page.Meta == nil || page.Meta.NextToken == "" {
			break
		}
		nextToken = page.Meta.NextToken
	}

	return result, nil
}

// get acquires the rate limiter, performs one authenticated request and
// decodes the response, classifying failures into the client's error types.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", "moodwatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{Endpoint: endpoint}
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Endpoint: endpoint, Message: fmt.Sprintf("unexpected response shape: %v", err)}
	}
	return nil
}
