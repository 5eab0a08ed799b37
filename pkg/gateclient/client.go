package gateclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/models"
)

var ErrNotFound = errors.New("person not found")

var errEmptyBody = errors.New("empty response body")

// APIError carries the message reported by the backend verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is makes a 404 match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type Client struct {
	http     *http.Client
	endpoint *url.URL
	token    string
}

type Option func(*Client)

var logger = logrus.StandardLogger().WithField("package", "gateclient")

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %s is not supported", u.Scheme)
	}

	c := &Client{
		endpoint: u,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SetHttpTransport(transport http.RoundTripper) {
	c.http.Transport = transport
}

type classifyRequest struct {
	Payload  string          `json:"payload"`
	PersonId string          `json:"personId"`
	Category models.Category `json:"category"`
}

// ClassifyScan asks the backend which approval state the scan starts in.
func (c *Client) ClassifyScan(ctx context.Context, payload string, personId string, category models.Category) (*models.Classification, error) {
	var res models.Classification
	err := c.do(ctx, http.MethodPost, "/api/scans/classify", classifyRequest{
		Payload:  payload,
		PersonId: personId,
		Category: category,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Person != nil && res.Person.Category == "" {
		res.Person.Category = category
	}
	return &res, nil
}

func (c *Client) FetchPerson(ctx context.Context, id string, category models.Category) (*models.PersonRecord, error) {
	var p models.PersonRecord
	if err := c.do(ctx, http.MethodGet, personPath(id, category, ""), nil, &p); err != nil {
		return nil, err
	}
	if p.Category == "" {
		p.Category = category
	}
	return &p, nil
}

func (c *Client) ApproveTimeIn(ctx context.Context, id string, category models.Category) (*models.ApprovalResult, error) {
	return c.approve(ctx, id, category, "time-in")
}

func (c *Client) ApproveTimeOut(ctx context.Context, id string, category models.Category) (*models.ApprovalResult, error) {
	return c.approve(ctx, id, category, "time-out")
}

func (c *Client) approve(ctx context.Context, id string, category models.Category, action string) (*models.ApprovalResult, error) {
	var res models.ApprovalResult
	err := c.do(ctx, http.MethodPost, personPath(id, category, action), nil, &res)
	if errors.Is(err, errEmptyBody) {
		// The write succeeded, there is just nothing to report.
		logger.Debugf("%s %s %s: empty response", action, category, id)
		return &models.ApprovalResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Healthz checks if the backend is healthy and returns true if it is.
func (c *Client) Healthz(ctx context.Context) (bool, error) {
	healthEndpoint, err := c.endpoint.Parse("/healthz")
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthEndpoint.String(), nil)
	if err != nil {
		return false, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	return res.StatusCode == http.StatusOK, nil
}

func personPath(id string, category models.Category, action string) string {
	p := fmt.Sprintf("/api/%s/%s", category.Collection(), url.PathEscape(id))
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	u, err := c.endpoint.Parse(path)
	if err != nil {
		return fmt.Errorf("unable to parse URL: %v", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("unable to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("unable to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger.Debugf("%s %s", method, u.Path)
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unable to perform HTTP request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeError(res)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("unable to decode response: %w", err)
	}
	return nil
}

func decodeError(res *http.Response) error {
	var errorMessage struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	_ = json.Unmarshal(b, &errorMessage)

	msg := errorMessage.Message
	if msg == "" {
		msg = errorMessage.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %s", res.Status)
	}
	return &APIError{StatusCode: res.StatusCode, Message: msg}
}
