package artifact_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/artifact"
	session "github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := artifact.NewStore("mem://localhost/artifacts-roundtrip")
	ctx := context.Background()

	data := []byte("district,tested,positive\nbo,100,17\n")
	key, err := s.Put(ctx, "s1", "result-table", session.ArtifactTable, data)
	if err != nil {
		t.Fatalf("Put err: %v", err)
	}
	if key == "" {
		t.Fatal("empty storage key")
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("content mismatch: got %q", got)
	}

	ok, err := s.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists err: %v", err)
	}
	if !ok {
		t.Fatal("stored artifact reported as missing")
	}
}

func TestPutIsContentAddressed(t *testing.T) {
	s := artifact.NewStore("mem://localhost/artifacts-addressing")
	ctx := context.Background()

	k1, err := s.Put(ctx, "s1", "result-table", session.ArtifactTable, []byte("same"))
	if err != nil {
		t.Fatalf("Put err: %v", err)
	}
	k2, err := s.Put(ctx, "s1", "result-table", session.ArtifactTable, []byte("same"))
	if err != nil {
		t.Fatalf("Put err: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("identical content produced different keys: %s vs %s", k1, k2)
	}

	k3, err := s.Put(ctx, "s1", "result-table", session.ArtifactTable, []byte("different"))
	if err != nil {
		t.Fatalf("Put err: %v", err)
	}
	if k3 == k1 {
		t.Fatal("different content reused a storage key")
	}
}

func TestPutValidatesInput(t *testing.T) {
	s := artifact.NewStore("mem://localhost/artifacts-validate")

	if _, err := s.Put(context.Background(), "", "name", session.ArtifactTable, nil); err == nil {
		t.Fatal("expected error for missing session id")
	}
	if _, err := s.Put(context.Background(), "s1", "", session.ArtifactTable, nil); err == nil {
		t.Fatal("expected error for missing name")
	}
}
