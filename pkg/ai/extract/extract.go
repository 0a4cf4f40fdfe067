// Package extract turns uploaded documents into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/quka-ai/knowledge-sync/pkg/ai"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

// Local handles text based formats in process.
type Local struct{}

func (Local) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	mimeType = utils.CleanContentType(mimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = utils.CleanContentType(http.DetectContentType(data))
	}

	switch {
	case mimeType == "text/html" || mimeType == "application/xhtml+xml":
		return HTMLText(data)
	case strings.HasPrefix(mimeType, "text/"), mimeType == "application/json", mimeType == "application/xml":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid utf8", ai.ErrUnsupportedMimeType, mimeType)
		}
		return cleanWhitespace(string(data)), nil
	}
	return "", fmt.Errorf("%w: %s", ai.ErrUnsupportedMimeType, mimeType)
}

var wsRX = regexp.MustCompile(`[ \t]+\n`)

func cleanWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(wsRX.ReplaceAllString(s, "\n"))
}

// HTMLText keeps headings, paragraphs and list items of the main content.
func HTMLText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Selection
	}

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	sel.Find("h1,h2,h3,h4,p,li,td").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return cleanWhitespace(strings.Join(parts, "\n")), nil
}

// Remote sends the document to an extraction server speaking the tika protocol:
// PUT <endpoint> with the raw body, answered with text/plain.
type Remote struct {
	client   *http.Client
	endpoint string
}

func NewRemote(endpoint string) *Remote {
	return &Remote{
		client:   &http.Client{},
		endpoint: endpoint,
	}
}

func (r *Remote) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if mimeType != "" {
		req.Header.Set("Content-Type", mimeType)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Failed to request extraction service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", ai.ErrUnsupportedMimeType, mimeType)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("Failed to request extraction service, %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return cleanWhitespace(string(raw)), nil
}

// Chain tries each extractor until one accepts the mime type.
type Chain []ai.Extractor

func (c Chain) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	lastErr := fmt.Errorf("%w: %s", ai.ErrUnsupportedMimeType, mimeType)
	for _, e := range c {
		text, err := e.Extract(ctx, data, mimeType)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ai.ErrUnsupportedMimeType) {
			return "", err
		}
		slog.Debug("extractor skipped", slog.String("mime_type", mimeType), slog.String("error", err.Error()))
		lastErr = err
	}
	return "", lastErr
}
