package rclone_test

import (
	"context"
	"testing"

	"github.com/xraph/jobgraph/artifact/rclone"
	"github.com/xraph/jobgraph/process"
	"github.com/xraph/jobgraph/process/processtest"
)

func TestBackend_PutFetchArgs(t *testing.T) {
	r := processtest.New(nil)
	b := rclone.New(rclone.Config{RemoteName: "s3", BasePath: "bucket/jg/"}, r, nil)
	ctx := context.Background()

	if err := b.Put(ctx, "sha256/ab/abc", "/tmp/in"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Fetch(ctx, "sha256/ab/abc", "/tmp/out"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	calls := r.CallsTo("rclone")
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	want := [][]string{
		{"copyto", "/tmp/in", "s3:bucket/jg/sha256/ab/abc"},
		{"copyto", "s3:bucket/jg/sha256/ab/abc", "/tmp/out"},
	}
	for i, w := range want {
		got := calls[i].Args
		if len(got) != len(w) {
			t.Fatalf("call %d args = %v, want %v", i, got, w)
		}
		for j := range w {
			if got[j] != w[j] {
				t.Errorf("call %d arg %d = %q, want %q", i, j, got[j], w[j])
			}
		}
	}
}

func TestBackend_Exists(t *testing.T) {
	tests := []struct {
		name   string
		result *process.Result
		want   bool
	}{
		{"file", &process.Result{Stdout: []byte(`[{"Path":"abc","Name":"abc","Size":4,"IsDir":false}]`)}, true},
		{"empty", &process.Result{Stdout: []byte(`[]`)}, false},
		{"not found", &process.Result{ExitCode: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := processtest.New(func(context.Context, process.Command) (*process.Result, error) {
				return tt.result, nil
			})
			b := rclone.New(rclone.Config{RemoteName: "r", BasePath: "p"}, r, nil)
			got, err := b.Exists(context.Background(), "k")
			if err != nil {
				t.Fatalf("Exists: %v", err)
			}
			if got != tt.want {
				t.Errorf("Exists = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackend_ExistsOtherFailure(t *testing.T) {
	r := processtest.New(func(context.Context, process.Command) (*process.Result, error) {
		return &process.Result{ExitCode: 1, Stderr: []byte("auth")}, nil
	})
	b := rclone.New(rclone.Config{RemoteName: "r"}, r, nil)
	if _, err := b.Exists(context.Background(), "k"); err == nil {
		t.Fatal("expected error for exit status 1")
	}
}
