package imageloader

import (
	"bytes"
	"context"
	"encoding/base64"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func assertKind(t *testing.T, err error, sentinel *errors.RecognitionError) {
	t.Helper()
	if !stderrors.Is(err, sentinel) {
		t.Fatalf("error = %v, want kind %s", err, sentinel.Kind)
	}
}

func TestLoadHTTP(t *testing.T) {
	pngData := testPNG(t, 40, 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngData)
		case "/garbage":
			w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewLoader(&LoaderConfig{Timeout: 2 * time.Second})

	img, err := l.Load(context.Background(), srv.URL+"/ok.png")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if img.Source != SourceHTTP || img.Format != "png" {
		t.Errorf("Source/Format = %s/%s, want http/png", img.Source, img.Format)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("Bounds() = %v", b)
	}

	_, err = l.Load(context.Background(), srv.URL+"/missing.png")
	assertKind(t, err, errors.ErrImageDownloadFailed)
	if errors.CodeOf(err) != errors.CodeImage {
		t.Errorf("404 code = %s, want ERR_IMAGE", errors.CodeOf(err))
	}

	_, err = l.Load(context.Background(), srv.URL+"/garbage")
	assertKind(t, err, errors.ErrImageDecodeFailed)
}

func TestLoadHTTPNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewLoader(nil).Load(context.Background(), url+"/x.png")
	assertKind(t, err, errors.ErrImageDownloadFailed)
}

func TestLoadHTTPTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0}, 4096))
	}))
	defer srv.Close()

	_, err := NewLoader(&LoaderConfig{MaxImageSize: 1024}).Load(context.Background(), srv.URL)
	assertKind(t, err, errors.ErrImageDownloadFailed)
}

func TestLoadLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	if err := os.WriteFile(path, testPNG(t, 8, 8), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil)
	for _, uri := range []string{path, "file://" + path} {
		img, err := l.Load(context.Background(), uri)
		if err != nil {
			t.Fatalf("Load(%q) error = %v", uri, err)
		}
		if img.Source != SourceFile {
			t.Errorf("Load(%q) source = %s, want file", uri, img.Source)
		}
	}

	bad := filepath.Join(dir, "broken.jpg")
	os.WriteFile(bad, []byte("\xff\xd8\xffnope"), 0o644)
	_, err := l.Load(context.Background(), bad)
	assertKind(t, err, errors.ErrImageDecodeFailed)
}

func TestLoadNotFound(t *testing.T) {
	l := NewLoader(&LoaderConfig{Resolvers: []ContentResolver{DataURIResolver{}}})
	_, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	assertKind(t, err, errors.ErrImageNotFound)

	_, err = l.Load(context.Background(), "content://media/external/images/42")
	assertKind(t, err, errors.ErrImageNotFound)
}

type recordingResolver struct {
	calls int
	data  []byte
	err   error
}

func (r *recordingResolver) Resolve(context.Context, string) ([]byte, error) {
	r.calls++
	return r.data, r.err
}

func TestLoadPrefersLocalFileOverContentReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	os.WriteFile(path, testPNG(t, 4, 4), 0o644)

	res := &recordingResolver{data: testPNG(t, 9, 9)}
	img, err := NewLoader(&LoaderConfig{Resolvers: []ContentResolver{res}}).Load(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.calls != 0 || img.Bounds().Dx() != 4 {
		t.Errorf("content resolver consulted (%d calls) despite existing local file", res.calls)
	}
}

func TestLoadContentResolvers(t *testing.T) {
	data := testPNG(t, 6, 3)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	skipping := &recordingResolver{err: ErrNoContent}
	l := NewLoader(&LoaderConfig{Resolvers: []ContentResolver{skipping, DataURIResolver{}}})
	img, err := l.Load(context.Background(), uri)
	if err != nil {
		t.Fatalf("Load(data uri) error = %v", err)
	}
	if img.Source != SourceContent || img.Bounds().Dx() != 6 || skipping.calls != 1 {
		t.Errorf("unexpected image %+v (skipping calls %d)", img, skipping.calls)
	}

	failing := &recordingResolver{err: io.ErrUnexpectedEOF}
	_, err = NewLoader(&LoaderConfig{Resolvers: []ContentResolver{failing}}).Load(context.Background(), "content://x")
	assertKind(t, err, errors.ErrImageDownloadFailed)
	if !stderrors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("resolver failure cause lost: %v", err)
	}

	missing := &recordingResolver{err: ErrNoContent}
	_, err = NewLoader(&LoaderConfig{Resolvers: []ContentResolver{missing}}).Load(context.Background(), "content://x")
	assertKind(t, err, errors.ErrImageNotFound)

	garbage := &recordingResolver{data: []byte("nope")}
	_, err = NewLoader(&LoaderConfig{Resolvers: []ContentResolver{garbage}}).Load(context.Background(), "content://x")
	assertKind(t, err, errors.ErrImageDecodeFailed)
}

func TestImagePNG(t *testing.T) {
	src := testPNG(t, 5, 7)
	img, err := NewLoader(nil).decode("mem", SourceContent, src)
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	out, err := img.PNG()
	if err != nil {
		t.Fatalf("PNG() error = %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil || cfg.Width != 5 || cfg.Height != 7 {
		t.Errorf("re-encoded png = %+v, %v", cfg, err)
	}
}

type fakeS3 struct {
	objects map[string][]byte
	err     error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Resolver(t *testing.T) {
	data := testPNG(t, 3, 3)
	r := NewS3ResolverWithClient(&fakeS3{objects: map[string][]byte{"scans/a/b.png": data}}, 0)

	got, err := r.Resolve(context.Background(), "s3://scans/a/b.png")
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Resolve() = %d bytes, %v", len(got), err)
	}

	for _, uri := range []string{"s3://scans/missing.png", "s3://nokey", "content://x"} {
		if _, err := r.Resolve(context.Background(), uri); !stderrors.Is(err, ErrNoContent) {
			t.Errorf("Resolve(%q) error = %v, want ErrNoContent", uri, err)
		}
	}

	failing := NewS3ResolverWithClient(&fakeS3{err: io.ErrClosedPipe}, 0)
	if _, err := failing.Resolve(context.Background(), "s3://b/k"); err == nil || stderrors.Is(err, ErrNoContent) {
		t.Errorf("Resolve() error = %v, want transport error", err)
	}

	l := NewLoader(&LoaderConfig{Resolvers: []ContentResolver{failing}})
	_, err = l.Load(context.Background(), "s3://b/k")
	assertKind(t, err, errors.ErrImageDownloadFailed)
	_, err = NewLoader(&LoaderConfig{Resolvers: []ContentResolver{r}}).Load(context.Background(), "s3://scans/missing.png")
	assertKind(t, err, errors.ErrImageNotFound)
}

func TestDataURIResolver(t *testing.T) {
	var r DataURIResolver
	if _, err := r.Resolve(context.Background(), "data:image/png;base64"); err == nil {
		t.Error("expected error for data uri without payload")
	}
	got, err := r.Resolve(context.Background(), "data:text/plain,hello%20world")
	if err != nil || string(got) != "hello world" {
		t.Errorf("Resolve() = %q, %v", got, err)
	}
	if _, err := r.Resolve(context.Background(), "s3://x/y"); !stderrors.Is(err, ErrNoContent) {
		t.Errorf("non-data uri error = %v, want ErrNoContent", err)
	}
}
