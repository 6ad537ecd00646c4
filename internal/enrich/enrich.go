// internal/enrich/enrich.go
package enrich

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"
	"golang.org/x/text/encoding/charmap"

	"github.com/bigcats-cc/email-sieve/internal/address"
	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Message enrichment.
 *
 * Enrich turns a raw RFC 5322 message plus its SMTP envelope into the
 * EnrichedMessage the rule engine evaluates. Everything rules can see is
 * derived here, once, before evaluation:
 *
 *   - address lists from From/To/Cc/Bcc/Reply-To (groups flattened, de-duped
 *     by address, first display name wins)
 *   - importance, subject, reply and list flags from their headers
 *   - dkim/spf/dmarc outcomes from Authentication-Results
 *   - first text/plain and first text/html body; text falls back to the HTML
 *     rendered as plain text
 *   - every header field in arrival order, RFC 2047 decoded
 *
 * Unknown charsets are tolerated: the affected part is kept undecoded.
 * A broken MIME body stops the walk early. Only an unreadable header block
 * is an error.
 */

func init() {
	// Legacy charsets seen in the wild that the default table lacks.
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Enrich parses raw and derives every field of the enriched message.
func Enrich(raw []byte, envelopeFrom, envelopeTo string) (*types.EnrichedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedMessage, err)
	}

	msg := &types.EnrichedMessage{
		Envelope: types.Envelope{
			From: address.ParseOrFallback(envelopeFrom),
			To:   address.ParseOrFallback(envelopeTo),
		},
		Size: int64(len(raw)),
	}

	h := mr.Header
	msg.From = addressList(h, "From")
	msg.To = addressList(h, "To")
	msg.Cc = addressList(h, "Cc")
	msg.Bcc = addressList(h, "Bcc")
	if h.Has("Reply-To") {
		msg.ReplyTo = addressList(h, "Reply-To")
	}

	if h.Has("Subject") {
		subject, err := h.Subject()
		if err != nil {
			subject = h.Get("Subject")
		}
		msg.Subject = &subject
	}
	if imp, ok := types.ParseImportance(strings.ToLower(strings.TrimSpace(h.Get("Importance")))); ok {
		msg.Importance = &imp
	}

	msg.IsMailingList = h.Has("List-Id") || h.Has("List-Unsubscribe")
	msg.IsAutoSubmitted = isAutoSubmitted(h.Get("Auto-Submitted"), h.Has("Auto-Submitted"))
	msg.IsReply = h.Has("In-Reply-To") || h.Has("References")
	msg.Authentication = ParseAuthenticationResults(headerValues(h, "Authentication-Results"))
	msg.Headers = collectHeaders(h)

	readBody(mr, msg)
	return msg, nil
}

// addressList returns the de-duplicated addresses of a header. A header that
// is missing or does not parse yields an empty list.
func addressList(h mail.Header, key string) []types.EmailAddress {
	out := []types.EmailAddress{}
	list, err := h.AddressList(key)
	if err != nil {
		return out
	}
	seen := make(map[string]bool, len(list))
	for _, a := range list {
		if a == nil || seen[a.Address] {
			continue
		}
		seen[a.Address] = true
		out = append(out, address.FromParts(a.Name, a.Address))
	}
	return out
}

// isAutoSubmitted: present and not "no".
func isAutoSubmitted(value string, present bool) bool {
	if !present {
		return false
	}
	v := strings.ToLower(strings.TrimSpace(value))
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v != "no"
}

// headerValues returns every raw value of key in arrival order.
func headerValues(h mail.Header, key string) []string {
	var out []string
	fields := h.FieldsByKey(key)
	for fields.Next() {
		out = append(out, fields.Value())
	}
	return out
}

// collectHeaders copies every header field in arrival order, decoding
// encoded words where possible.
func collectHeaders(h mail.Header) types.Headers {
	var out types.Headers
	fields := h.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		out.Add(fields.Key(), value)
	}
	return out
}

// readBody walks the MIME tree, keeping the first plain and HTML inline parts.
func readBody(mr *mail.Reader, msg *types.EnrichedMessage) {
	var haveText, haveHTML bool
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A broken MIME structure ends the walk; what was read so far is kept.
			break
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := ph.ContentType()
			if contentType == "" {
				contentType = "text/plain"
			}
			switch {
			case contentType == "text/plain" && !haveText:
				if body, err := io.ReadAll(part.Body); err == nil {
					msg.Body.Text = string(body)
					haveText = true
				}
			case contentType == "text/html" && !haveHTML:
				if body, err := io.ReadAll(part.Body); err == nil {
					msg.Body.HTML = string(body)
					haveHTML = true
				}
			}
		case *mail.AttachmentHeader:
			msg.HasAttachments = true
		}
	}

	if !haveText && haveHTML {
		msg.Body.Text = html2text.HTML2Text(msg.Body.HTML)
	}
}
