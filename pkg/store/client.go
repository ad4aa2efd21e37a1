// Package store wraps the content-addressed object store's HTTP API
// (an IPFS node's /api/v0 surface): add/pin, mutable-path files
// operations, content-address fetch, and pubsub announce. Merlin only
// ever calls out to the store; it never accepts inbound connections.
package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/swarmos/merlin/pkg/metrics"
)

const defaultTimeout = 10 * time.Second

// Client talks to a single object-store HTTP API endpoint.
type Client struct {
	apiURL  string
	http    *http.Client
	metrics *metrics.Registry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default timeout-bound http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithMetrics attaches a metrics.Registry that every request is recorded
// against. Passing nil (the default) disables instrumentation.
func WithMetrics(m *metrics.Registry) Option {
	return func(cl *Client) { cl.metrics = m }
}

// New builds a Client against apiURL (e.g. "http://localhost:5001").
func New(apiURL string, opts ...Option) *Client {
	c := &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		http:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) base() string {
	return c.apiURL + "/api/v0"
}

func (c *Client) record(operation string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.StoreRequests.WithLabelValues(operation, outcome).Inc()
	c.metrics.StoreLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (c *Client) post(ctx context.Context, operation, path string, values url.Values, body io.Reader, contentType string) (*http.Response, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/%s", c.base(), path)
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		c.record(operation, start, err)
		return nil, fmt.Errorf("building %s request: %w", operation, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	c.record(operation, start, err)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", operation, err)
	}
	return resp, nil
}

// Connected reports whether the store's daemon answers /id.
func (c *Client) Connected(ctx context.Context) bool {
	resp, err := c.post(ctx, "id", "id", nil, nil, "")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// EnsureDirectories creates the canonical mutable-path layout, ignoring
// "already exists" failures.
func (c *Client) EnsureDirectories(ctx context.Context) error {
	dirs := []string{
		"/swarmpool",
		"/swarmpool/jobs",
		"/swarmpool/claims",
		"/swarmpool/proofs",
		"/swarmpool/genesis",
		"/swarmledger",
		"/swarmledger/epochs",
		"/swarmledger/settlements",
	}
	for _, dir := range dirs {
		resp, err := c.post(ctx, "files/mkdir", "files/mkdir", url.Values{"arg": {dir}, "parents": {"true"}}, nil, "")
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
		resp.Body.Close()
	}
	return nil
}

// Add uploads data as filename and returns its CID (requesting CIDv1).
func (c *Client) Add(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("writing multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("closing multipart body: %w", err)
	}

	resp, err := c.post(ctx, "add", "add", url.Values{"cid-version": {"1"}}, &buf, writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrAddFailed, resp.StatusCode)
	}

	var result struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding add response: %w", err)
	}
	return result.Hash, nil
}

// Pin pins a CID so it survives garbage collection.
func (c *Client) Pin(ctx context.Context, cid string) error {
	resp, err := c.post(ctx, "pin/add", "pin/add", url.Values{"arg": {cid}}, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// FilesRm removes a mutable-path entry, forcing removal of non-empty
// directories, and ignores "file does not exist".
func (c *Client) FilesRm(ctx context.Context, path string) error {
	resp, err := c.post(ctx, "files/rm", "files/rm", url.Values{"arg": {path}, "force": {"true"}}, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// FilesCp copies an immutable CID onto a mutable path.
func (c *Client) FilesCp(ctx context.Context, cid, path string) error {
	values := url.Values{}
	values.Add("arg", "/ipfs/"+cid)
	values.Add("arg", path)
	resp, err := c.post(ctx, "files/cp", "files/cp", values, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		// files/cp failures are ambiguous (source CID unresolvable, or
		// destination path already occupied by a prior FilesRm that
		// silently failed) — not necessarily ErrObjectNotFound.
		return fmt.Errorf("files/cp to %s failed with status %d", path, resp.StatusCode)
	}
	return nil
}

// PublishSnapshot adds the already canonical-encoded document to the
// store, copies the resulting CID onto the canonical mutable path
// (removing any prior occupant first), and pins it. Both the mutable path and the CID are
// guaranteed reachable on success.
func (c *Client) PublishSnapshot(ctx context.Context, canonical []byte, directory, id string) (string, error) {
	cid, err := c.Add(ctx, id+".json", canonical)
	if err != nil {
		return "", fmt.Errorf("adding snapshot: %w", err)
	}

	path := directory + "/" + id + ".json"
	if err := c.FilesRm(ctx, path); err != nil {
		return "", fmt.Errorf("clearing prior occupant of %s: %w", path, err)
	}
	if err := c.FilesCp(ctx, cid, path); err != nil {
		return "", fmt.Errorf("publishing to %s: %w", path, err)
	}
	if err := c.Pin(ctx, cid); err != nil {
		return "", fmt.Errorf("pinning %s: %w", cid, err)
	}
	return cid, nil
}

// FilesLS lists the JSON document names (without extension) in an MFS
// directory.
func (c *Client) FilesLS(ctx context.Context, path string) ([]string, error) {
	resp, err := c.post(ctx, "files/ls", "files/ls", url.Values{"arg": {path}, "long": {"true"}}, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var result struct {
		Entries []struct {
			Name string `json:"Name"`
		} `json:"Entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding files/ls response: %w", err)
	}

	names := make([]string, 0, len(result.Entries))
	for _, e := range result.Entries {
		if strings.HasSuffix(e.Name, ".json") {
			names = append(names, strings.TrimSuffix(e.Name, ".json"))
		}
	}
	return names, nil
}

// FilesRead reads a JSON document from an MFS path.
func (c *Client) FilesRead(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.post(ctx, "files/read", "files/read", url.Values{"arg": {path}}, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("files/read %s: %w (status %d)", path, ErrObjectNotFound, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Cat fetches content by CID.
func (c *Client) Cat(ctx context.Context, cid string) ([]byte, error) {
	resp, err := c.post(ctx, "cat", "cat", url.Values{"arg": {cid}}, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cat %s: %w (status %d)", cid, ErrObjectNotFound, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FilesStat returns the CID currently backing an MFS path.
func (c *Client) FilesStat(ctx context.Context, path string) (string, error) {
	resp, err := c.post(ctx, "files/stat", "files/stat", url.Values{"arg": {path}}, nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("files/stat %s: %w (status %d)", path, ErrObjectNotFound, resp.StatusCode)
	}
	var result struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding files/stat response: %w", err)
	}
	return result.Hash, nil
}

// PubsubPub publishes data (base64-encoded, per the store's wire format)
// to topic. Failures here are best-effort by design — callers should log
// and continue rather than treat them as fatal.
func (c *Client) PubsubPub(ctx context.Context, topic string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	resp, err := c.post(ctx, "pubsub/pub", "pubsub/pub", url.Values{"arg": {topic}}, strings.NewReader(encoded), "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
