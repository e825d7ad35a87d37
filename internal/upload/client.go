package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/hubenschmidt/mock-interview/client/internal/errs"
)

// Kind names an upload stream.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

type endpoint struct {
	path        string
	field       string
	filename    string
	contentType string
}

var endpoints = map[Kind]endpoint{
	KindAudio: {path: "/send_audio", field: "audio", filename: "audio.wav", contentType: "audio/wav"},
	KindVideo: {path: "/send_video", field: "video", filename: "video.jpeg", contentType: "image/jpeg"},
}

// Meta tags an upload so the server can attribute the live updates it produces.
type Meta struct {
	SessionID     string
	QuestionIndex int
	Seq           int
}

// Sender delivers one encoded chunk.
type Sender interface {
	Send(ctx context.Context, kind Kind, payload []byte, m Meta) error
}

// Client posts chunks as multipart form uploads to the analysis server.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a client with a pooled transport sized for concurrent uploads.
func NewClient(url string, poolSize int, timeout time.Duration) *Client {
	return &Client{
		url:    strings.TrimRight(url, "/"),
		client: NewPooledHTTPClient(poolSize, timeout),
	}
}

// NewPooledHTTPClient returns an HTTP client with connection pooling tuned for
// many small concurrent requests to one host.
func NewPooledHTTPClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

func (c *Client) Send(ctx context.Context, kind Kind, payload []byte, m Meta) error {
	ep, ok := endpoints[kind]
	if !ok {
		return errs.Errorf(errs.KindValidation, "send", "unknown upload kind %q", kind)
	}
	op := strings.TrimPrefix(ep.path, "/")

	body, contentType, err := buildMultipart(ep, payload)
	if err != nil {
		return errs.New(errs.KindTransport, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+ep.path, body)
	if err != nil {
		return errs.New(errs.KindTransport, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Session-ID", m.SessionID)
	req.Header.Set("X-Question-Index", strconv.Itoa(m.QuestionIndex))
	req.Header.Set("X-Chunk-Seq", strconv.Itoa(m.Seq))

	resp, err := c.client.Do(req)
	if err != nil {
		return errs.New(errs.KindTransport, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errs.Errorf(errs.KindTransport, op, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func buildMultipart(ep endpoint, payload []byte) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ep.field, ep.filename))
	header.Set("Content-Type", ep.contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(payload); err != nil {
		return nil, "", fmt.Errorf("write %s data: %w", ep.field, err)
	}
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
