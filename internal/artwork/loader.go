package artwork

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/boxes-ltd/imaging"
	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ErrUnsupportedURL is returned for art URLs whose scheme the loader does
// not handle.
var ErrUnsupportedURL = errors.New("unsupported artwork url")

// ErrPending is returned for a remote art URL that is not cached yet. Its
// fetch runs in the background and a later Load of the same URL returns
// the result.
var ErrPending = errors.New("artwork fetch pending")

// MaxPixels caps the dimensions a source image may declare. Larger images
// are rejected from their header, before any pixel is decoded.
const MaxPixels = 4096 * 4096

// Options tune a Loader.
type Options struct {
	Timeout   time.Duration
	RetryMax  int
	CacheSize int
	MaxBytes  int64
}

func DefaultOptions() Options {
	return Options{
		Timeout:   5 * time.Second,
		RetryMax:  2,
		CacheSize: 64,
		MaxBytes:  8 << 20,
	}
}

// Loader resolves artwork referenced by URL and returns it normalized.
// Local URLs are decoded in the caller. Remote URLs are only ever served
// from the cache; a miss starts a background fetch that fills it.
type Loader struct {
	opts   Options
	client *retryablehttp.Client
	cache  *lru.Cache[string, []byte]
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool
	closed   bool
}

func NewLoader(opts Options, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = def.CacheSize
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create artwork cache: %w", err)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = leveledLogger{logger.Named("http").Sugar()}

	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		opts:     opts,
		client:   client,
		cache:    cache,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]bool),
	}, nil
}

// Load returns the normalized PNG for rawURL. Supported schemes are file,
// data, http and https. An uncached http(s) URL yields ErrPending at once.
func (l *Loader) Load(ctx context.Context, rawURL string) ([]byte, error) {
	if png, ok := l.cache.Get(rawURL); ok {
		return png, nil
	}

	if strings.HasPrefix(rawURL, "data:") {
		img, err := l.decodeDataURL(rawURL)
		if err != nil {
			return nil, err
		}
		return l.store(rawURL, img)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse artwork url: %w", err)
	}
	switch u.Scheme {
	case "file":
		img, err := l.openFile(u.Path)
		if err != nil {
			return nil, err
		}
		return l.store(rawURL, img)
	case "http", "https":
		l.prefetch(rawURL)
		return nil, fmt.Errorf("%w: %s", ErrPending, rawURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, u.Scheme)
	}
}

// Cached reports how many URLs currently have a cached result.
func (l *Loader) Cached() int {
	return l.cache.Len()
}

// Close cancels running fetches and waits for them to return.
func (l *Loader) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cancel()
	l.wg.Wait()
	return nil
}

func (l *Loader) store(rawURL string, img image.Image) ([]byte, error) {
	png, err := Normalize(img)
	if err != nil {
		return nil, err
	}
	l.cache.Add(rawURL, png)
	return png, nil
}

// prefetch fetches rawURL into the cache unless a fetch for it is already
// running.
func (l *Loader) prefetch(rawURL string) {
	l.mu.Lock()
	if l.closed || l.inflight[rawURL] {
		l.mu.Unlock()
		return
	}
	l.inflight[rawURL] = true
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.inflight, rawURL)
			l.mu.Unlock()
		}()

		img, err := l.fetch(l.ctx, rawURL)
		if err == nil {
			_, err = l.store(rawURL, img)
		}
		if err != nil {
			l.logger.Warn("artwork prefetch failed", zap.String("url", rawURL), zap.Error(err))
			return
		}
		l.logger.Debug("artwork prefetched", zap.String("url", rawURL))
	}()
}

func (l *Loader) openFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artwork %s: %w", path, err)
	}
	defer f.Close()
	data, err := l.readLimited(f)
	if err != nil {
		return nil, err
	}
	return decodeBounded(data)
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (image.Image, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build artwork request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch artwork: status %d", resp.StatusCode)
	}
	data, err := l.readLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodeBounded(data)
}

// decodeDataURL handles base64 data URIs such as
// data:image/png;base64,iVBORw0...
func (l *Loader) decodeDataURL(raw string) (image.Image, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data url", ErrUnsupportedURL)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: data url is not base64", ErrUnsupportedURL)
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > l.opts.MaxBytes {
		return nil, fmt.Errorf("%w: data url larger than %d bytes", ErrEncode, l.opts.MaxBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	return decodeBounded(data)
}

// readLimited reads r whole, failing once it exceeds MaxBytes.
func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read artwork: %w", err)
	}
	if int64(len(data)) > l.opts.MaxBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrEncode, l.opts.MaxBytes)
	}
	return data, nil
}

// decodeBounded checks the declared dimensions before decoding pixels.
func decodeBounded(data []byte) (img image.Image, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode artwork: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrEncode, cfg.Width, cfg.Height, MaxPixels)
	}

	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("%w: %v", ErrEncode, r)
		}
	}()
	img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode artwork: %w", err)
	}
	return img, nil
}

// leveledLogger routes retryablehttp's logging into zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{}) { l.s.Warnw(msg, kv...) }
