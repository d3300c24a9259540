package inmemory

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	siterepo "github.com/desain-gratis/sitehost/repository/site"
	"github.com/desain-gratis/sitehost/types/entity"
	types "github.com/desain-gratis/sitehost/types/http"
)

var _ siterepo.Repository = &handler{}

// To emulate the durable manifest store for test & local development.
// The single mutex plays the role of the database uniqueness constraint.
type handler struct {
	mtx  *sync.Mutex
	data map[string]entity.Site
}

func New() *handler {
	return &handler{
		mtx:  &sync.Mutex{},
		data: make(map[string]entity.Site),
	}
}

func (h *handler) CreateIfAbsent(ctx context.Context, data entity.Site) (*entity.Site, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if _, ok := h.data[data.SiteName]; ok {
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusBadRequest, Code: "NAME_CONFLICT", Message: "Site '" + data.SiteName + "' already exists."},
			},
		}
	}

	now := time.Now()
	if data.CreatedAt == (time.Time{}) {
		data.CreatedAt = now
	}
	data.UpdatedAt = now
	data.Files = copyFiles(data.Files)

	h.data[data.SiteName] = data

	result := data
	return &result, nil
}

func (h *handler) GetByName(ctx context.Context, siteName string) (*entity.Site, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	data, ok := h.data[siteName]
	if !ok {
		return nil, notFound()
	}

	data.Files = copyFiles(data.Files)
	return &data, nil
}

func (h *handler) ListByOwner(ctx context.Context, owner string) ([]entity.Site, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	result := make([]entity.Site, 0)
	for _, data := range h.data {
		if data.Owner != owner {
			continue
		}
		data.Files = copyFiles(data.Files)
		result = append(result, data)
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].SiteName < result[b].SiteName
	})

	return result, nil
}

func (h *handler) DeleteByNameAndOwner(ctx context.Context, siteName, owner string) (*entity.Site, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	data, ok := h.data[siteName]
	if !ok {
		return nil, notFound()
	}

	if data.Owner != owner {
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusNotFound, Code: "FORBIDDEN", Message: "Site not found or you don't have permission."},
			},
		}
	}

	delete(h.data, siteName)

	return &data, nil
}

func copyFiles(in []entity.FileRecord) []entity.FileRecord {
	out := make([]entity.FileRecord, len(in))
	copy(out, in)
	return out
}

func notFound() *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{HTTPCode: http.StatusNotFound, Code: "NOT_FOUND", Message: "Site not found."},
		},
	}
}
