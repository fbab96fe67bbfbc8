package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/bnema/presence-tracker/internal/ports"
)

var _ ports.Deliverer = (*Deliverer)(nil)

// Deliverer posts payloads to an http(s) webhook. Text goes out as a JSON
// message, anything else as a multipart file upload.
type Deliverer struct {
	client *http.Client
}

func New(timeout time.Duration) *Deliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Deliverer{client: &http.Client{Timeout: timeout}}
}

func NewWithClient(client *http.Client) *Deliverer {
	return &Deliverer{client: client}
}

type textMessage struct {
	Content string `json:"content"`
}

func (d *Deliverer) Deliver(ctx context.Context, dest domain.Destination, payload domain.Payload) error {
	if err := dest.Validate(); err != nil {
		return err
	}
	target := strings.TrimSpace(string(dest))
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: webhook deliverer needs http(s)", domain.ErrInvalidDestination)
	}

	body, contentType, err := encode(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func encode(payload domain.Payload) (io.Reader, string, error) {
	if payload.Kind == domain.PayloadText {
		data, err := json.Marshal(textMessage{Content: string(payload.Body)})
		if err != nil {
			return nil, "", fmt.Errorf("encode webhook message: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, payload.Filename))
	contentType := payload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(payload.Body); err != nil {
		return nil, "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
