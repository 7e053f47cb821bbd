package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/backoff"
	"github.com/xraph/jobgraph/process"
)

const (
	defaultAttempts    = 3
	defaultCurlRetries = 5
)

// Client performs downloads with curl and uploads with s3am.
type Client struct {
	runner      process.Runner
	attempts    int
	curlRetries int
	backoff     backoff.Strategy
	curl        string
	s3am        string
	baseURL     string
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAttempts sets how many times a failed invocation is tried in total
// before a *jobgraph.TransferError is returned. Values below 1 mean 1.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.attempts = n
	}
}

// WithCurlRetries sets the value passed to curl --retry.
func WithCurlRetries(n int) Option {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.curlRetries = n
	}
}

// WithBackoff sets the delay between failed invocations.
func WithBackoff(s backoff.Strategy) Option {
	return func(c *Client) { c.backoff = s }
}

// WithBaseURL sets the endpoint used for destination URLs.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithBinaries overrides the curl and s3am executable names.
func WithBinaries(curl, s3am string) Option {
	return func(c *Client) {
		if curl != "" {
			c.curl = curl
		}
		if s3am != "" {
			c.s3am = s3am
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a client executing through runner.
func NewClient(runner process.Runner, opts ...Option) *Client {
	c := &Client{
		runner:      runner,
		attempts:    defaultAttempts,
		curlRetries: defaultCurlRetries,
		backoff:     backoff.TransferStrategy(),
		curl:        "curl",
		s3am:        "s3am",
		baseURL:     DefaultBaseURL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the endpoint used for destination URLs.
func (c *Client) BaseURL() string { return c.baseURL }

// Download fetches url into dest, encrypted when masterKey is non-nil.
func (c *Client) Download(ctx context.Context, url, dest string, masterKey []byte) error {
	if masterKey == nil {
		return c.DownloadPlain(ctx, url, dest)
	}
	return c.DownloadEncrypted(ctx, url, masterKey, dest)
}

// DownloadPlain fetches url into dest.
func (c *Client) DownloadPlain(ctx context.Context, url, dest string) error {
	args := []string{"-fs", "--retry", strconv.Itoa(c.curlRetries), "--create-dirs", url, "-o", dest}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return c.invoke(ctx, url, process.Command{Name: c.curl, Args: args}, dest)
}

// DownloadEncrypted fetches an SSE-C object into dest using the key
// derived from masterKey and url.
func (c *Client) DownloadEncrypted(ctx context.Context, url string, masterKey []byte, dest string) error {
	key, err := DeriveKey(masterKey, url)
	if err != nil {
		return err
	}
	args := []string{"-fs", "--retry", strconv.Itoa(c.curlRetries)}
	for _, h := range Headers(key) {
		args = append(args, "-H", h)
	}
	args = append(args, url, "-o", dest)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return c.invoke(ctx, url, process.Command{Name: c.curl, Args: args, Secret: true}, dest)
}

// Upload sends localPath to dest under its base name, encrypted when
// masterKey is non-nil.
func (c *Client) Upload(ctx context.Context, localPath string, dest Destination, masterKey []byte) error {
	if masterKey == nil {
		return c.UploadPlain(ctx, localPath, dest)
	}
	return c.UploadEncrypted(ctx, localPath, dest, masterKey)
}

// UploadPlain sends localPath to dest under its base name.
func (c *Client) UploadPlain(ctx context.Context, localPath string, dest Destination) error {
	name := filepath.Base(localPath)
	args := []string{"upload", "file://" + localPath, dest.Bucket, dest.Key(name)}
	return c.invoke(ctx, dest.URL(c.baseURL, name), process.Command{Name: c.s3am, Args: args}, "")
}

// UploadEncrypted sends localPath to dest with a key derived from the
// destination object URL. The key is written to a private temporary file
// that is removed afterwards.
func (c *Client) UploadEncrypted(ctx context.Context, localPath string, dest Destination, masterKey []byte) error {
	name := filepath.Base(localPath)
	url := dest.URL(c.baseURL, name)
	key, err := DeriveKey(masterKey, url)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "jobgraph-key-")
	if err != nil {
		return fmt.Errorf("transfer: key dir: %w", err)
	}
	defer os.RemoveAll(dir)

	keyPath := filepath.Join(dir, name+".key")
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return fmt.Errorf("transfer: write key file: %w", err)
	}

	args := []string{"upload", "--sse-key-file", keyPath, "file://" + localPath, dest.Bucket, dest.Key(name)}
	return c.invoke(ctx, url, process.Command{Name: c.s3am, Args: args}, "")
}

// invoke runs cmd up to c.attempts times. When dest is set, success also
// requires dest to exist and be non-empty.
func (c *Client) invoke(ctx context.Context, url string, cmd process.Command, dest string) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			if err := backoff.Wait(ctx, c.backoff, attempt-1); err != nil {
				return err
			}
		}

		_, err := c.runner.Run(ctx, cmd)
		if err == nil && dest != "" {
			err = checkNonEmpty(dest)
		}
		if err == nil {
			c.logger.Debug("transfer completed",
				slog.String("tool", cmd.Name),
				slog.String("url", url),
				slog.Int("attempt", attempt),
			)
			return nil
		}
		if jobgraph.KindOf(err) == jobgraph.KindEnvironment {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = err
		c.logger.Warn("transfer attempt failed",
			slog.String("tool", cmd.Name),
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	return &jobgraph.TransferError{URL: url, Attempts: c.attempts, Err: lastErr}
}

func checkNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("transfer: missing output %s: %w", path, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return fmt.Errorf("transfer: %s: %w", path, jobgraph.ErrEmptyArtifact)
	}
	return nil
}
