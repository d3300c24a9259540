package inmemory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/desain-gratis/sitehost/types/entity"
)

func site(name, owner string) entity.Site {
	return entity.Site{
		SiteName: name,
		Owner:    owner,
		Files: []entity.FileRecord{
			{Filename: "index.html", BlobID: "blob-1", ContentType: "text/html", UploadedAt: time.Now()},
		},
	}
}

func TestCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	h := New()

	created, err := h.CreateIfAbsent(ctx, site("demo", "U1"))
	if err != nil {
		t.Fatalf("CreateIfAbsent() err = %v", err.Err())
	}
	if created.CreatedAt == (time.Time{}) || created.UpdatedAt == (time.Time{}) {
		t.Errorf("timestamps not assigned: %+v", created)
	}

	// the name is taken, regardless of owner
	_, err = h.CreateIfAbsent(ctx, site("demo", "U2"))
	if err == nil || err.Errors[0].Code != "NAME_CONFLICT" {
		t.Errorf("CreateIfAbsent() on taken name = %v, want NAME_CONFLICT", err)
	}

	// the original record is untouched
	got, errGet := h.GetByName(ctx, "demo")
	if errGet != nil {
		t.Fatalf("GetByName() err = %v", errGet.Err())
	}
	if got.Owner != "U1" {
		t.Errorf("owner = %v, want U1", got.Owner)
	}
}

func TestCreateIfAbsentConcurrent(t *testing.T) {
	ctx := context.Background()
	h := New()

	const attempts = 16

	var wg sync.WaitGroup
	var mtx sync.Mutex
	winners := 0
	conflicts := 0
	for n := 0; n < attempts; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.CreateIfAbsent(ctx, site("demo", "U1"))

			mtx.Lock()
			defer mtx.Unlock()
			if err == nil {
				winners++
			} else if err.Errors[0].Code == "NAME_CONFLICT" {
				conflicts++
			}
		}()
	}
	wg.Wait()

	if winners != 1 || conflicts != attempts-1 {
		t.Errorf("winners = %v conflicts = %v, want 1 and %v", winners, conflicts, attempts-1)
	}
}

func TestListByOwner(t *testing.T) {
	ctx := context.Background()
	h := New()

	for _, s := range []entity.Site{site("bravo", "U1"), site("alpha", "U1"), site("foreign", "U2")} {
		if _, err := h.CreateIfAbsent(ctx, s); err != nil {
			t.Fatalf("CreateIfAbsent(%v) err = %v", s.SiteName, err.Err())
		}
	}

	result, err := h.ListByOwner(ctx, "U1")
	if err != nil {
		t.Fatalf("ListByOwner() err = %v", err.Err())
	}
	if len(result) != 2 || result[0].SiteName != "alpha" || result[1].SiteName != "bravo" {
		t.Errorf("ListByOwner() = %+v, want alpha then bravo", result)
	}

	empty, err := h.ListByOwner(ctx, "U3")
	if err != nil {
		t.Fatalf("ListByOwner(U3) err = %v", err.Err())
	}
	if len(empty) != 0 {
		t.Errorf("ListByOwner(U3) = %+v, want empty", empty)
	}
}

func TestDeleteByNameAndOwner(t *testing.T) {
	ctx := context.Background()
	h := New()

	if _, err := h.CreateIfAbsent(ctx, site("demo", "U1")); err != nil {
		t.Fatalf("CreateIfAbsent() err = %v", err.Err())
	}

	tests := []struct {
		name     string
		siteName string
		owner    string
		wantCode string
	}{
		{name: "absent site", siteName: "ghost", owner: "U1", wantCode: "NOT_FOUND"},
		{name: "wrong owner", siteName: "demo", owner: "U2", wantCode: "FORBIDDEN"},
		{name: "owner deletes", siteName: "demo", owner: "U1", wantCode: ""},
		{name: "already gone", siteName: "demo", owner: "U1", wantCode: "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed, err := h.DeleteByNameAndOwner(ctx, tt.siteName, tt.owner)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("DeleteByNameAndOwner() err = %v", err.Err())
				}
				if len(removed.Files) != 1 || removed.Files[0].BlobID != "blob-1" {
					t.Errorf("removed record = %+v, want its file list back", removed)
				}
				return
			}
			if err == nil || err.Errors[0].Code != tt.wantCode {
				t.Errorf("DeleteByNameAndOwner() = %v, want %v", err, tt.wantCode)
			}
		})
	}
}
