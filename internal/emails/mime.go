package emails

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"clientreports/internal/apperrors"
	"clientreports/internal/models"
	"clientreports/internal/sanitizer"
)

// ParseRawMessage converts an RFC 822 message into the canonical message shape.
// The Message-ID header becomes the id, so re-delivery of the same mail is idempotent.
func ParseRawMessage(r io.Reader) (models.Message, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return models.Message{}, apperrors.Validation("parse message", fmt.Sprintf("failed to read email message: %v", err))
	}

	header := msg.Header
	id := cleanMessageID(header.Get("Message-ID"))
	if id == "" {
		return models.Message{}, apperrors.Validation("parse message", "missing Message-ID header")
	}

	out := models.Message{
		ID:      id,
		Subject: decodeHeader(header.Get("Subject")),
		From:    decodeHeader(header.Get("From")),
		To:      decodeHeader(header.Get("To")),
		Labels:  []string{},
	}
	if cc := header.Get("Cc"); cc != "" {
		cc = decodeHeader(cc)
		out.CC = &cc
	}
	if bcc := header.Get("Bcc"); bcc != "" {
		bcc = decodeHeader(bcc)
		out.BCC = &bcc
	}

	date := time.Now()
	if dateStr := header.Get("Date"); dateStr != "" {
		if parsed, err := mail.ParseDate(dateStr); err == nil {
			date = parsed
		}
	}
	out.Date = date.UTC().Format(models.DateLayout)

	body, err := extractBody(msg)
	if err != nil {
		return models.Message{}, apperrors.Validation("parse message", fmt.Sprintf("failed to extract body: %v", err))
	}
	out.Body = strings.TrimSpace(body)

	return out, nil
}

// extractBody extracts the body text from an email message
func extractBody(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		return extractSinglePartBody(msg.Body, "text/plain", msg.Header.Get("Content-Transfer-Encoding"))
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Fallback: read as plain text
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipartBody(msg.Body, params["boundary"])
	}

	return extractSinglePartBody(msg.Body, mediaType, msg.Header.Get("Content-Transfer-Encoding"))
}

// extractMultipartBody prefers text/plain parts and falls back to stripped HTML
func extractMultipartBody(body io.Reader, boundary string) (string, error) {
	mr := multipart.NewReader(body, boundary)
	var textParts []string
	var htmlParts []string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		partContentType := part.Header.Get("Content-Type")
		mediaType, params, _ := mime.ParseMediaType(partContentType)

		if strings.HasPrefix(mediaType, "multipart/") {
			if nested, err := extractMultipartBody(part, params["boundary"]); err == nil && nested != "" {
				textParts = append(textParts, nested)
			}
			continue
		}

		content, err := extractSinglePartBody(part, mediaType, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(mediaType, "text/plain"):
			textParts = append(textParts, content)
		case strings.HasPrefix(mediaType, "text/html"):
			htmlParts = append(htmlParts, content)
		}
	}

	if len(textParts) > 0 {
		return strings.Join(textParts, "\n\n"), nil
	}
	if len(htmlParts) > 0 {
		return strings.Join(htmlParts, "\n\n"), nil
	}
	return "", nil
}

// extractSinglePartBody decodes the transfer encoding; HTML is reduced to text
func extractSinglePartBody(body io.Reader, mediaType, transferEncoding string) (string, error) {
	reader := body

	switch strings.ToLower(transferEncoding) {
	case "quoted-printable":
		reader = quotedprintable.NewReader(body)
	case "base64":
		reader = base64.NewDecoder(base64.StdEncoding, body)
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(mediaType, "text/html") {
		return sanitizer.StripHTML(string(content)), nil
	}
	return string(content), nil
}

// decodeHeader decodes MIME encoded headers
func decodeHeader(header string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// cleanMessageID removes whitespace and the surrounding < >
func cleanMessageID(msgID string) string {
	msgID = strings.TrimSpace(msgID)
	msgID = strings.TrimPrefix(msgID, "<")
	msgID = strings.TrimSuffix(msgID, ">")
	return msgID
}
