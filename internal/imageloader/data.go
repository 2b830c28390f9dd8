package imageloader

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// DataURIResolver decodes RFC 2397 "data:" URIs
type DataURIResolver struct{}

// Resolve returns the payload of a data URI
func (DataURIResolver) Resolve(_ context.Context, uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, ErrNoContent
	}

	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri: missing comma")
	}

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 data uri: %w", err)
		}
		return data, nil
	}

	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unescape data uri: %w", err)
	}
	return []byte(unescaped), nil
}
