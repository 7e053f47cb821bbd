package transfer_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/backoff"
	"github.com/xraph/jobgraph/process"
	"github.com/xraph/jobgraph/process/processtest"
	"github.com/xraph/jobgraph/transfer"
)

// curlWrites simulates curl writing body to the -o path.
func curlWrites(body string) processtest.HandlerFunc {
	return func(_ context.Context, cmd process.Command) (*process.Result, error) {
		out := processtest.Arg(cmd.Args, "-o")
		return &process.Result{}, os.WriteFile(out, []byte(body), 0o644)
	}
}

func newClient(r process.Runner, opts ...transfer.Option) *transfer.Client {
	return transfer.NewClient(r, append([]transfer.Option{transfer.WithBackoff(backoff.None)}, opts...)...)
}

func TestDownloadPlain(t *testing.T) {
	r := processtest.New(curlWrites("data"))
	c := newClient(r)
	dest := filepath.Join(t.TempDir(), "a.bam")

	if err := c.DownloadPlain(context.Background(), "https://x/a", dest); err != nil {
		t.Fatalf("DownloadPlain: %v", err)
	}
	calls := r.CallsTo("curl")
	if len(calls) != 1 {
		t.Fatalf("curl calls = %d, want 1", len(calls))
	}
	got := strings.Join(calls[0].Args, " ")
	want := "-fs --retry 5 --create-dirs https://x/a -o " + dest
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestDownloadEncrypted_Headers(t *testing.T) {
	r := processtest.New(curlWrites("secret"))
	c := newClient(r)
	dest := filepath.Join(t.TempDir(), "sub", "b.bam")
	url := "https://s3-us-west-2.amazonaws.com/bucket/b.bam"

	if err := c.DownloadEncrypted(context.Background(), url, masterKey, dest); err != nil {
		t.Fatalf("DownloadEncrypted: %v", err)
	}
	call := r.CallsTo("curl")[0]
	if !call.Secret {
		t.Error("encrypted download must not log its arguments")
	}

	key, _ := transfer.DeriveKey(masterKey, url)
	want := transfer.Headers(key)
	var got []string
	for i, a := range call.Args {
		if a == "-H" {
			got = append(got, call.Args[i+1])
		}
	}
	if len(got) != 3 {
		t.Fatalf("headers = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("header %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDownload_RetriesThenSucceeds(t *testing.T) {
	var n atomic.Int64
	r := processtest.New(func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		if n.Add(1) < 3 {
			return &process.Result{ExitCode: 28}, nil
		}
		return curlWrites("ok")(ctx, cmd)
	})
	c := newClient(r, transfer.WithAttempts(3))
	dest := filepath.Join(t.TempDir(), "f")

	if err := c.Download(context.Background(), "https://x/f", dest, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got := len(r.Calls()); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestDownload_ExhaustedIsTransferError(t *testing.T) {
	r := processtest.New(func(context.Context, process.Command) (*process.Result, error) {
		return &process.Result{ExitCode: 7}, nil
	})
	c := newClient(r, transfer.WithAttempts(4))

	err := c.DownloadPlain(context.Background(), "https://x/f", filepath.Join(t.TempDir(), "f"))
	var te *jobgraph.TransferError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransferError", err)
	}
	if te.Attempts != 4 || len(r.Calls()) != 4 {
		t.Errorf("attempts = %d, calls = %d, want 4", te.Attempts, len(r.Calls()))
	}
	if !jobgraph.Retryable(err) {
		t.Error("transfer errors are retryable at the job level")
	}
}

func TestDownload_EmptyOutputIsFailure(t *testing.T) {
	r := processtest.New(curlWrites(""))
	c := newClient(r, transfer.WithAttempts(2))

	err := c.DownloadPlain(context.Background(), "https://x/f", filepath.Join(t.TempDir(), "f"))
	if jobgraph.KindOf(err) != jobgraph.KindTransfer {
		t.Fatalf("kind = %q (%v), want transfer", jobgraph.KindOf(err), err)
	}
	if !errors.Is(err, jobgraph.ErrEmptyArtifact) {
		t.Errorf("expected ErrEmptyArtifact in chain: %v", err)
	}
}

func TestDownload_MissingCurl(t *testing.T) {
	r := processtest.New(nil).Missing("curl")
	c := newClient(r)

	err := c.DownloadPlain(context.Background(), "https://x/f", filepath.Join(t.TempDir(), "f"))
	if jobgraph.KindOf(err) != jobgraph.KindEnvironment {
		t.Fatalf("kind = %q, want environment", jobgraph.KindOf(err))
	}
	if len(r.Calls()) != 1 {
		t.Errorf("missing tool must not be retried, calls = %d", len(r.Calls()))
	}
}

func TestUploadEncrypted(t *testing.T) {
	dest, _ := transfer.ParseDestination("bucket/out/dir")
	local := filepath.Join(t.TempDir(), "S1.tgz")
	if err := os.WriteFile(local, []byte("tarball"), 0o644); err != nil {
		t.Fatal(err)
	}
	wantKey, _ := transfer.DeriveKey(masterKey, "https://s3-us-west-2.amazonaws.com/bucket/out/dir/S1.tgz")

	var keyPath string
	r := processtest.New(func(_ context.Context, cmd process.Command) (*process.Result, error) {
		keyPath = processtest.Arg(cmd.Args, "--sse-key-file")
		info, err := os.Stat(keyPath)
		if err != nil {
			return nil, err
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
		}
		b, _ := os.ReadFile(keyPath)
		if !bytes.Equal(b, wantKey) {
			t.Error("key file does not hold the destination-derived key")
		}
		return &process.Result{}, nil
	})
	c := newClient(r)

	if err := c.UploadEncrypted(context.Background(), local, dest, masterKey); err != nil {
		t.Fatalf("UploadEncrypted: %v", err)
	}
	call := r.CallsTo("s3am")[0]
	n := len(call.Args)
	if call.Args[0] != "upload" || call.Args[n-3] != "file://"+local || call.Args[n-2] != "bucket" || call.Args[n-1] != "out/dir/S1.tgz" {
		t.Errorf("args = %v", call.Args)
	}
	if _, err := os.Stat(keyPath); !os.IsNotExist(err) {
		t.Error("key file not removed after upload")
	}
}

func TestUploadPlain(t *testing.T) {
	dest, _ := transfer.ParseDestination("bucket")
	r := processtest.New(nil)
	c := newClient(r)

	if err := c.Upload(context.Background(), "/work/S1.muse.vcf", dest, nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	got := strings.Join(r.CallsTo("s3am")[0].Args, " ")
	if got != "upload file:///work/S1.muse.vcf bucket S1.muse.vcf" {
		t.Errorf("args = %q", got)
	}
}
