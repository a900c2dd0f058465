package source

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matzehuels/stemma/pkg/buildinfo"
	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/observability"
)

// DefaultTimeout bounds every backend request.
const DefaultTimeout = 10 * time.Second

// DefaultAPIURL is the backend a local development server listens on.
const DefaultAPIURL = "http://localhost:5000/api"

// maxResponseSize caps a decoded response body.
const maxResponseSize = 32 << 20

// APISource reads trees from the REST backend:
//
//	GET {base}/trees/{id}
//	GET {base}/trees/{id}/persons
//	GET {base}/trees/{id}/relationships
//	GET {base}/trees/{id}/marriages
//
// Each response is wrapped in {"success": bool, "count": n, "data": ...}.
type APISource struct {
	base    string
	http    *http.Client
	headers map[string]string
}

// APIOption configures an [APISource].
type APIOption func(*APISource)

// WithToken sends a bearer token with every request.
func WithToken(token string) APIOption {
	return func(s *APISource) {
		if token != "" {
			s.headers["Authorization"] = "Bearer " + token
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) APIOption {
	return func(s *APISource) {
		if c != nil {
			s.http = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) APIOption {
	return func(s *APISource) {
		if d > 0 {
			s.http.Timeout = d
		}
	}
}

// NewAPISource returns a source for the backend at baseURL.
func NewAPISource(baseURL string, opts ...APIOption) (*APISource, error) {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if err := errors.ValidateURL(baseURL); err != nil {
		return nil, err
	}
	s := &APISource{
		base: strings.TrimRight(baseURL, "/"),
		http: NewHTTPClient(),
		headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": buildinfo.UserAgent(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewHTTPClient returns the client used when none is configured.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// envelope is the backend's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (s *APISource) Tree(ctx context.Context, treeID int64) (family.Tree, error) {
	var rec TreeRecord
	if err := s.get(ctx, treeID, "", &rec); err != nil {
		return family.Tree{}, err
	}
	return Tree(rec)
}

func (s *APISource) Persons(ctx context.Context, treeID int64) ([]family.Person, error) {
	var recs []PersonRecord
	if err := s.get(ctx, treeID, "persons", &recs); err != nil {
		return nil, err
	}
	return Persons(recs)
}

func (s *APISource) Relationships(ctx context.Context, treeID int64) ([]family.ParentChildEdge, error) {
	var recs []RelationshipRecord
	if err := s.get(ctx, treeID, "relationships", &recs); err != nil {
		return nil, err
	}
	return Relationships(recs)
}

func (s *APISource) Marriages(ctx context.Context, treeID int64) ([]family.Marriage, error) {
	var recs []MarriageRecord
	if err := s.get(ctx, treeID, "marriages", &recs); err != nil {
		return nil, err
	}
	return Marriages(recs)
}

func (s *APISource) url(treeID int64, collection string) string {
	u := s.base + "/trees/" + FormatID(treeID)
	if collection != "" {
		u += "/" + collection
	}
	return u
}

func (s *APISource) get(ctx context.Context, treeID int64, collection string, v any) error {
	url := s.url(treeID, collection)
	body, err := s.doRequest(ctx, url, collection)
	if err != nil {
		return err
	}
	defer body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(body, maxResponseSize)).Decode(&env); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode %s", url)
	}
	if !env.Success {
		return errors.New(errors.ErrCodeNetwork, "%s: %s", url, envMessage(env.Message))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode %s data", url)
	}
	return nil
}

func (s *APISource) doRequest(ctx context.Context, url, collection string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "build request")
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	service := "backend"
	hooks.OnRequest(ctx, service, http.MethodGet, url)
	start := time.Now()

	resp, err := s.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, service, http.MethodGet, url, err)
		if ctx.Err() != nil || isTimeout(err) {
			return nil, errors.Wrap(errors.ErrCodeTimeout, err, "GET %s", url)
		}
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "GET %s", url)
	}
	hooks.OnResponse(ctx, service, http.MethodGet, url, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp, collection); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// checkStatus maps backend status codes onto error codes. The backend answers
// 403 both for bad tokens and for trees owned by someone else.
func checkStatus(resp *http.Response, collection string) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	msg := fmt.Sprintf("status %d", code)
	var env envelope
	if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env) == nil && env.Message != "" {
		msg = env.Message
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.New(errors.ErrCodeUnauthorized, "%s", msg)
	case code == http.StatusNotFound && collection == "":
		return errors.New(errors.ErrCodeTreeNotFound, "%s", msg)
	case code == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "%s", msg)
	default:
		return errors.New(errors.ErrCodeNetwork, "%s", msg)
	}
}

func envMessage(m string) string {
	if m == "" {
		return "request failed"
	}
	return m
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return stderrors.As(err, &t) && t.Timeout()
}
