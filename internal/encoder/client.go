// Package encoder turns face images into feature vectors by calling an
// external embedding server.
package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultURL      = "http://localhost:8000"
	defaultTimeout  = 30 * time.Second
	defaultMaxImage = 1600
	faceEndpoint    = "/embed/face"
)

// ErrNoFace is returned when the server detected no face in the image.
var ErrNoFace = errors.New("no face detected")

// Client computes face embeddings using the embedding server
type Client struct {
	baseURL      string
	maxImageSize int
	client       *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request to the embedding server.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithMaxImageSize sets the longest edge images are scaled down to before upload.
// Zero disables resizing.
func WithMaxImageSize(px int) Option {
	return func(c *Client) { c.maxImageSize = px }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a new embedding client
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		maxImageSize: defaultMaxImage,
		client:       &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectFaces posts the image as-is and returns the raw detection response.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postImage(ctx, faceEndpoint, imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// Encode returns one feature vector per detected face, in detection order.
// Returns ErrNoFace when the image contains no usable face.
func (c *Client) Encode(ctx context.Context, imageData []byte) ([][]float64, error) {
	faceResp, err := c.DetectFaces(ctx, PrepareImage(imageData, c.maxImageSize))
	if err != nil {
		return nil, err
	}

	vectors := make([][]float64, 0, len(faceResp.Faces))
	for _, face := range faceResp.Faces {
		if len(face.Embedding) == 0 {
			continue
		}
		v := make([]float64, len(face.Embedding))
		for i, x := range face.Embedding {
			v[i] = float64(x)
		}
		vectors = append(vectors, v)
	}
	if len(vectors) == 0 {
		return nil, ErrNoFace
	}
	return vectors, nil
}
