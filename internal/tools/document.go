package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	pdfx "github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Document is an uploaded source text, base64 encoded (data: URLs allowed).
type Document struct {
	DataBase64  string `json:"data_base64"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type ExtractLimits struct {
	MaxBytes int
	MaxPages int
	Timeout  time.Duration
}

var ErrUnsupportedDocument = errors.New("unsupported document type; provide PDF, HTML or plain text")

// ExtractText turns a PDF, HTML or plain-text document into text for the
// audio step.
func ExtractText(ctx context.Context, doc Document, lim ExtractLimits) (string, error) {
	b64 := doc.DataBase64
	if b64 == "" {
		return "", errors.New("missing data_base64")
	}
	if i := strings.Index(b64, ","); i != -1 {
		b64 = b64[i+1:]
	}
	buf, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("invalid base64: %w", err)
	}
	if lim.MaxBytes > 0 && len(buf) > lim.MaxBytes {
		return "", fmt.Errorf("document too large: %d bytes > limit %d", len(buf), lim.MaxBytes)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(doc.Filename), "."))
	ctype := strings.ToLower(doc.ContentType)
	switch {
	case bytes.HasPrefix(buf, []byte("%PDF-")) || ext == "pdf" || strings.Contains(ctype, "pdf"):
		return pdfText(ctx, buf, lim)
	case ext == "html" || ext == "htm" || strings.Contains(ctype, "html") || looksHTML(buf):
		return htmlText(buf)
	case ext == "txt" || ext == "md" || ext == "" || strings.HasPrefix(ctype, "text/"):
		return strings.TrimSpace(string(buf)), nil
	}
	return "", ErrUnsupportedDocument
}

func pdfText(ctx context.Context, buf []byte, lim ExtractLimits) (string, error) {
	r, err := pdfx.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var deadline time.Time
	if lim.Timeout > 0 {
		deadline = time.Now().Add(lim.Timeout)
	}
	pages := r.NumPage()
	if lim.MaxPages > 0 && pages > lim.MaxPages {
		pages = lim.MaxPages
	}
	var out strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return "", errors.New("pdf extraction timeout")
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, _ := p.GetPlainText(nil)
		if t := strings.TrimSpace(txt); t != "" {
			out.WriteString(t)
			out.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func looksHTML(buf []byte) bool {
	head := strings.ToLower(string(buf[:min(len(buf), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<body")
}

func htmlText(buf []byte) (string, error) {
	node, err := html.Parse(bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	collectText(node, &b, false)
	return compactWhitespace(b.String()), nil
}

func collectText(n *html.Node, b *strings.Builder, hidden bool) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "head":
			hidden = true
		case "br", "p", "div", "li", "tr", "h1", "h2", "h3":
			b.WriteString("\n")
		}
	}
	if !hidden && n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b, hidden)
	}
}

func compactWhitespace(s string) string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		if ln = strings.Join(strings.Fields(ln), " "); ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
