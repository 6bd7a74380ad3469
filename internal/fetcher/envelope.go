package fetcher

import (
	"fmt"
	"strings"
)

const headerTerminator = "\r\n\r\n"

// StripEnvelope drops the status line and header block in front of an archived body.
// A WARC response record wraps the original HTTP response, so when the remaining body
// is itself an HTTP message its head is dropped as well.
func StripEnvelope(payload string) (string, error) {
	body, err := splitHead(payload)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(body, "HTTP/") {
		if inner, err := splitHead(body); err == nil {
			body = inner
		}
	}
	return body, nil
}

func splitHead(payload string) (string, error) {
	head, body, ok := strings.Cut(payload, headerTerminator)
	if !ok {
		return "", fmt.Errorf("%w: no header terminator", ErrMalformedEnvelope)
	}
	statusLine, _, _ := strings.Cut(head, "\r\n")
	if strings.TrimSpace(statusLine) == "" {
		return "", fmt.Errorf("%w: empty status line", ErrMalformedEnvelope)
	}
	return body, nil
}
