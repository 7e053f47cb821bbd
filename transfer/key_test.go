package transfer_test

import (
	"bytes"
	"crypto/md5" //nolint:gosec // verifying protocol digest
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xraph/jobgraph"
	"github.com/xraph/jobgraph/transfer"
)

var masterKey = []byte("0123456789abcdef0123456789abcdef")

func TestDeriveKey_Deterministic(t *testing.T) {
	url := "https://s3-us-west-2.amazonaws.com/bucket/a.bam"
	k1, err := transfer.DeriveKey(masterKey, url)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, _ := transfer.DeriveKey(masterKey, url)
	if len(k1) != transfer.KeySize {
		t.Fatalf("len = %d, want %d", len(k1), transfer.KeySize)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("derivation is not deterministic")
	}
}

func TestDeriveKey_DistinctURLs(t *testing.T) {
	a, _ := transfer.DeriveKey(masterKey, "https://x/a")
	b, _ := transfer.DeriveKey(masterKey, "https://x/b")
	if bytes.Equal(a, b) {
		t.Error("distinct URLs produced identical keys")
	}
}

func TestDeriveKey_BadMasterKey(t *testing.T) {
	for _, k := range [][]byte{nil, []byte("short"), bytes.Repeat([]byte("x"), 33)} {
		_, err := transfer.DeriveKey(k, "https://x/a")
		if jobgraph.KindOf(err) != jobgraph.KindConfig {
			t.Errorf("len %d: kind = %q, want config", len(k), jobgraph.KindOf(err))
		}
	}
}

func TestHeaders(t *testing.T) {
	key, _ := transfer.DeriveKey(masterKey, "https://x/a")
	h := transfer.Headers(key)
	if len(h) != 3 {
		t.Fatalf("headers = %d, want 3", len(h))
	}
	if h[0] != "x-amz-server-side-encryption-customer-algorithm:AES256" {
		t.Errorf("algorithm header = %q", h[0])
	}
	wantKey := "x-amz-server-side-encryption-customer-key:" + base64.StdEncoding.EncodeToString(key)
	if h[1] != wantKey {
		t.Errorf("key header = %q, want %q", h[1], wantKey)
	}
	sum := md5.Sum(key) //nolint:gosec
	wantMD5 := "x-amz-server-side-encryption-customer-key-md5:" + base64.StdEncoding.EncodeToString(sum[:])
	if h[2] != wantMD5 {
		t.Errorf("md5 header = %q, want %q", h[2], wantMD5)
	}
}

func TestLoadMasterKey(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.key")
	bad := filepath.Join(dir, "bad.key")
	if err := os.WriteFile(good, masterKey, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, append(masterKey, '\n'), 0o600); err != nil {
		t.Fatal(err)
	}

	k, err := transfer.LoadMasterKey(good)
	if err != nil {
		t.Fatalf("LoadMasterKey(good): %v", err)
	}
	if !bytes.Equal(k, masterKey) {
		t.Error("key contents differ")
	}

	_, err = transfer.LoadMasterKey(bad)
	if jobgraph.KindOf(err) != jobgraph.KindConfig {
		t.Errorf("bad key kind = %q, want config", jobgraph.KindOf(err))
	}
	if !strings.Contains(err.Error(), "33 bytes") {
		t.Errorf("error should report length: %v", err)
	}

	_, err = transfer.LoadMasterKey(filepath.Join(dir, "missing"))
	if jobgraph.KindOf(err) != jobgraph.KindConfig {
		t.Errorf("missing key kind = %q, want config", jobgraph.KindOf(err))
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		in         string
		bucket     string
		prefix     string
		url        string
		shouldFail bool
	}{
		{in: "bucket/dir/sub", bucket: "bucket", prefix: "dir/sub", url: "https://s3-us-west-2.amazonaws.com/bucket/dir/sub/f.tgz"},
		{in: "bucket", bucket: "bucket", prefix: "", url: "https://s3-us-west-2.amazonaws.com/bucket/f.tgz"},
		{in: "s3://bucket/dir/", bucket: "bucket", prefix: "dir", url: "https://s3-us-west-2.amazonaws.com/bucket/dir/f.tgz"},
		{in: "", shouldFail: true},
		{in: "/", shouldFail: true},
	}
	for _, tt := range tests {
		d, err := transfer.ParseDestination(tt.in)
		if tt.shouldFail {
			if jobgraph.KindOf(err) != jobgraph.KindConfig {
				t.Errorf("ParseDestination(%q) err = %v, want config error", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDestination(%q): %v", tt.in, err)
		}
		if d.Bucket != tt.bucket || d.Prefix != tt.prefix {
			t.Errorf("ParseDestination(%q) = %+v", tt.in, d)
		}
		if got := d.URL("", "f.tgz"); got != tt.url {
			t.Errorf("URL = %q, want %q", got, tt.url)
		}
	}
}
