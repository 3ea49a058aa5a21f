package source

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/mikey/giveaway-engine/internal/core"
)

var (
	tagPattern   = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
	hrefPattern  = regexp.MustCompile(`(?i)<a\s[^>]*href\s*=\s*["']([^"']+)["'][^>]*>`)
	blankPattern = regexp.MustCompile(`\n\s*\n+`)
	headerWords  = new(mime.WordDecoder)
)

// Parse reads a single raw message handed over outside a poll cycle
func Parse(raw []byte, ref string) (core.Candidate, error) {
	return parseMessage(raw, "file", ref)
}

// parseMessage turns a raw RFC 5322 message into a candidate. The id is the
// Message-Id header, or a digest of the raw bytes when there is none.
func parseMessage(raw []byte, sourceName, ref string) (core.Candidate, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return core.Candidate{}, fmt.Errorf("failed to parse email message: %w", err)
	}

	body, err := extractText(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return core.Candidate{}, fmt.Errorf("failed to extract text content: %w", err)
	}

	id := strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), "<>")
	if id == "" {
		sum := sha256.Sum256(raw)
		id = hex.EncodeToString(sum[:16])
	}

	received, err := msg.Header.Date()
	if err != nil {
		received = time.Now()
	}

	return core.Candidate{
		ID:         id,
		Source:     sourceName,
		RawRef:     ref,
		Sender:     decodeHeader(msg.Header.Get("From")),
		Subject:    decodeHeader(msg.Header.Get("Subject")),
		Body:       body,
		ReceivedAt: received.UTC(),
	}, nil
}

func decodeHeader(value string) string {
	decoded, err := headerWords.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// extractText returns the text/plain content of a part, falling back to
// text/html with tags stripped. Nested multiparts are walked.
func extractText(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return readDecoded(r, encoding)
		}
		return extractMultipart(multipart.NewReader(r, boundary))
	}

	text, err := readDecoded(r, encoding)
	if err != nil {
		return "", err
	}
	if mediaType == "text/html" {
		return htmlToText(text), nil
	}
	return text, nil
}

func extractMultipart(mr *multipart.Reader) (string, error) {
	var plain, html strings.Builder
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if plain.Len() > 0 || html.Len() > 0 {
				break
			}
			return "", err
		}
		if part.FileName() != "" {
			continue
		}

		ct := part.Header.Get("Content-Type")
		mediaType, _, _ := mime.ParseMediaType(ct)
		switch {
		case mediaType == "" || mediaType == "text/plain":
			// multipart.Reader already undoes quoted-printable
			text, err := readDecoded(part, transferEncoding(part))
			if err != nil {
				continue
			}
			plain.WriteString(text)
			plain.WriteString("\n")
		case mediaType == "text/html":
			text, err := readDecoded(part, transferEncoding(part))
			if err != nil {
				continue
			}
			html.WriteString(htmlToText(text))
			html.WriteString("\n")
		case strings.HasPrefix(mediaType, "multipart/"):
			text, err := extractText(ct, "", part)
			if err != nil {
				continue
			}
			plain.WriteString(text)
		}
	}

	if plain.Len() > 0 {
		return plain.String(), nil
	}
	return html.String(), nil
}

// transferEncoding hides quoted-printable, which multipart.Reader has consumed
func transferEncoding(part *multipart.Part) string {
	enc := part.Header.Get("Content-Transfer-Encoding")
	if strings.EqualFold(enc, "quoted-printable") {
		return ""
	}
	return enc
}

func readDecoded(r io.Reader, encoding string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, &newlineStripper{r: r})
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// htmlToText keeps link targets inline so entry links survive tag stripping
func htmlToText(html string) string {
	text := hrefPattern.ReplaceAllString(html, " $1 ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	return strings.TrimSpace(blankPattern.ReplaceAllString(text, "\n"))
}

// newlineStripper drops CR and LF so base64 bodies decode
type newlineStripper struct {
	r io.Reader
}

func (n *newlineStripper) Read(p []byte) (int, error) {
	for {
		c, err := n.r.Read(p)
		out := p[:0]
		for _, b := range p[:c] {
			if b != '\r' && b != '\n' {
				out = append(out, b)
			}
		}
		if len(out) > 0 || err != nil {
			return len(out), err
		}
	}
}
