/**
 * Image Loader
 *
 * Resolves an opaque URI string into a decoded image. Resolution order,
 * first match wins:
 *   1. http:// or https:// → single GET with a bounded timeout
 *   2. local path (a literal file:// prefix is stripped) that exists
 *   3. content reference handed to the registered resolvers
 * Nothing is retried.
 */

package imageloader

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/disintegration/imaging"

	// Formats beyond the image package defaults
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Source names the branch that produced an image
type Source string

const (
	SourceHTTP    Source = "http"
	SourceFile    Source = "file"
	SourceContent Source = "content"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxImageSize = 50 * 1024 * 1024
)

// Image is a decoded image plus where it came from
type Image struct {
	URI    string
	Source Source
	Format string
	img    image.Image
}

// Decoded returns the decoded pixels
func (i *Image) Decoded() image.Image {
	return i.img
}

// Bounds returns the pixel bounds of the image
func (i *Image) Bounds() image.Rectangle {
	return i.img.Bounds()
}

// PNG returns the image encoded as PNG
func (i *Image) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, i.img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ErrNoContent is returned by a resolver that has nothing for a URI
var ErrNoContent = stderrors.New("no content for uri")

// ContentResolver fetches the bytes behind a content reference
type ContentResolver interface {
	// Resolve returns the raw image bytes, or ErrNoContent when the
	// reference is not one it handles or does not exist.
	Resolve(ctx context.Context, uri string) ([]byte, error)
}

// LoaderConfig holds loader configuration
type LoaderConfig struct {
	// Timeout bounds a remote download (connect + read)
	Timeout time.Duration
	// MaxImageSize caps bytes read from any source
	MaxImageSize int64
	// HTTPClient overrides the client used for downloads
	HTTPClient *http.Client
	// Resolvers are tried in order for content references
	Resolvers []ContentResolver
	Logger    *logging.Logger
}

// Loader resolves image URIs
type Loader struct {
	client    *http.Client
	maxSize   int64
	resolvers []ContentResolver
	logger    *logging.Logger
}

// NewLoader creates a new image loader
func NewLoader(cfg *LoaderConfig) *Loader {
	if cfg == nil {
		cfg = &LoaderConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	maxSize := cfg.MaxImageSize
	if maxSize <= 0 {
		maxSize = defaultMaxImageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Loader{
		client:    client,
		maxSize:   maxSize,
		resolvers: cfg.Resolvers,
		logger:    logger,
	}
}

// Load resolves uri into a decoded image
func (l *Loader) Load(ctx context.Context, uri string) (*Image, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return l.loadRemote(ctx, uri)
	}

	path := strings.TrimPrefix(uri, "file://")
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return l.loadFile(uri, path)
	}

	for _, r := range l.resolvers {
		data, err := r.Resolve(ctx, uri)
		if stderrors.Is(err, ErrNoContent) {
			continue
		}
		if err != nil {
			l.logger.Warn("Content resolver failed", "uri", uri, "error", err)
			return nil, errors.NewDownloadFailedError(uri, err)
		}
		return l.decode(uri, SourceContent, data)
	}

	return nil, errors.NewImageNotFoundError(uri)
}

func (l *Loader) loadRemote(ctx context.Context, uri string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.NewDownloadFailedError(uri, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Warn("Image download failed", "uri", uri, "error", err)
		return nil, errors.NewDownloadFailedError(uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		l.logger.Warn("Image download returned non-success status", "uri", uri, "status", resp.StatusCode)
		return nil, errors.NewDownloadFailedError(uri, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	if resp.ContentLength > l.maxSize {
		return nil, errors.NewDownloadFailedError(uri,
			fmt.Errorf("image size exceeds maximum: %d > %d bytes", resp.ContentLength, l.maxSize))
	}

	data, err := l.readLimited(resp.Body)
	if err != nil {
		return nil, errors.NewDownloadFailedError(uri, err)
	}

	l.logger.Debug("Image downloaded", "uri", uri, "bytes", len(data))
	return l.decode(uri, SourceHTTP, data)
}

func (l *Loader) loadFile(uri, path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewImageNotFoundError(uri)
	}
	defer f.Close()

	data, err := l.readLimited(f)
	if err != nil {
		return nil, errors.NewDecodeFailedError(uri, err)
	}
	return l.decode(uri, SourceFile, data)
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, fmt.Errorf("image size exceeds maximum of %d bytes", l.maxSize)
	}
	return data, nil
}

func (l *Loader) decode(uri string, source Source, data []byte) (*Image, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewDecodeFailedError(uri, err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.NewDecodeFailedError(uri, err)
	}

	return &Image{URI: uri, Source: source, Format: format, img: img}, nil
}
