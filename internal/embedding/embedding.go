// Package embedding talks to the embedding sidecar: an HTTP service that
// turns component text into vectors for semantic search.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	perrors "github.com/dusk-indust/polyparse/internal/errors"
)

// DefaultTimeout bounds one request when Config.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// DefaultBatchSize is the number of inputs sent per request.
const DefaultBatchSize = 32

// Config locates the sidecar.
type Config struct {
	URL       string
	Model     string
	Token     string
	Timeout   time.Duration
	BatchSize int
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

type request struct {
	Inputs    []string `json:"inputs"`
	Model     string   `json:"model,omitempty"`
	Normalize bool     `json:"normalize"`
}

type response struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions"`
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

// Client generates embeddings through the sidecar.
type Client struct {
	baseURL   string
	model     string
	token     string
	batchSize int
	client    *http.Client
	log       *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client for cfg. The URL is required.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, perrors.New(perrors.Config, "embedding url is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	c := &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		model:     cfg.Model,
		token:     cfg.Token,
		batchSize: batch,
		client:    hc,
		log:       logrus.StandardLogger().WithField("component", "embedding"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// GenerateEmbedding returns the vector for one text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GenerateBatchEmbeddings returns one vector per text, in order. Texts are
// sent in batches; every vector of a call has the same dimension.
func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, perrors.Newf(perrors.Config, "input %d is empty", i)
		}
	}

	out := make([][]float32, 0, len(texts))
	dims := 0
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		resp, err := c.post(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-start {
			return nil, perrors.Newf(perrors.BackendCommunicationFailure,
				"embedding count mismatch: expected %d, got %d", end-start, len(resp.Embeddings))
		}
		for _, v := range resp.Embeddings {
			if dims == 0 {
				dims = len(v)
			}
			if len(v) == 0 || len(v) != dims {
				return nil, perrors.Newf(perrors.BackendCommunicationFailure,
					"inconsistent embedding dimensions: %d and %d", dims, len(v))
			}
			out = append(out, v)
		}
		c.log.WithFields(logrus.Fields{"inputs": end - start, "dimensions": dims, "model": resp.Model}).Debug("embeddings generated")
	}
	return out, nil
}

// Health reports whether the sidecar answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/health", nil)
	if err != nil {
		return perrors.Wrap(err, perrors.Internal, "create request")
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return perrors.Wrap(err, perrors.BackendCommunicationFailure, "embedding sidecar unreachable").WithContext("url", c.baseURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return perrors.Newf(perrors.BackendCommunicationFailure, "embedding sidecar health: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, inputs []string) (*response, error) {
	body, err := json.Marshal(request{Inputs: inputs, Model: c.model, Normalize: true})
	if err != nil {
		return nil, perrors.Wrap(err, perrors.Internal, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, perrors.Wrap(err, perrors.Internal, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.BackendCommunicationFailure, "send embedding request").WithContext("url", c.baseURL)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.BackendCommunicationFailure, "read embedding response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, data)
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, perrors.Wrap(err, perrors.BackendCommunicationFailure, "decode embedding response")
	}
	return &out, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func statusError(status int, body []byte) error {
	var env errorEnvelope
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		msg = env.Error.Code + ": " + env.Error.Message
	}
	err := perrors.New(perrors.BackendCommunicationFailure, fmt.Sprintf("embedding request failed with status %d: %s", status, msg))
	if env.Error.Retryable || status == http.StatusTooManyRequests {
		err.WithContext("retryable", "true")
	}
	return err
}
