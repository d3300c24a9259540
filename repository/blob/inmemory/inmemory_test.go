package inmemory

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	h := New()

	data, err := h.Put(ctx, "text/html", strings.NewReader("<h1>hello</h1>"))
	if err != nil {
		t.Fatalf("Put() err = %v", err.Err())
	}
	if data.ID == "" {
		t.Fatalf("Put() returned empty id")
	}
	if data.ContentSize != int64(len("<h1>hello</h1>")) {
		t.Errorf("Put() size = %v", data.ContentSize)
	}

	payload, meta, err := h.Get(ctx, data.ID)
	if err != nil {
		t.Fatalf("Get() err = %v", err.Err())
	}
	defer payload.Close()

	if meta.ContentType != "text/html" {
		t.Errorf("Get() content type = %v, want text/html", meta.ContentType)
	}
	got, _ := io.ReadAll(payload)
	if string(got) != "<h1>hello</h1>" {
		t.Errorf("Get() payload = %q", got)
	}
}

func TestGetUnknown(t *testing.T) {
	ctx := context.Background()
	h := New()

	_, _, err := h.Get(ctx, "no-such-id")
	if err == nil || err.Errors[0].Code != "BLOB_NOT_FOUND" {
		t.Errorf("Get(unknown) = %v, want BLOB_NOT_FOUND", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	h := New()

	data, err := h.Put(ctx, "text/plain", strings.NewReader("bye"))
	if err != nil {
		t.Fatalf("Put() err = %v", err.Err())
	}

	deleted, errDelete := h.Delete(ctx, data.ID)
	if errDelete != nil {
		t.Fatalf("Delete() err = %v", errDelete.Err())
	}
	if !deleted {
		t.Errorf("Delete() = false, want true on first delete")
	}

	// second delete reports already gone, not an error
	deleted, errDelete = h.Delete(ctx, data.ID)
	if errDelete != nil {
		t.Fatalf("second Delete() err = %v", errDelete.Err())
	}
	if deleted {
		t.Errorf("second Delete() = true, want false")
	}

	if _, _, errGet := h.Get(ctx, data.ID); errGet == nil {
		t.Errorf("Get() after delete should fail")
	}
}

func TestBlobsAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := New()

	a, _ := h.Put(ctx, "text/plain", strings.NewReader("aaa"))
	b, _ := h.Put(ctx, "text/plain", strings.NewReader("bbb"))
	if a.ID == b.ID {
		t.Fatalf("two puts share an id")
	}

	if _, err := h.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() err = %v", err.Err())
	}

	payload, _, err := h.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("Get(b) err = %v", err.Err())
	}
	defer payload.Close()
	got, _ := io.ReadAll(payload)
	if string(got) != "bbb" {
		t.Errorf("Get(b) payload = %q", got)
	}
}
