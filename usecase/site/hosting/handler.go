package hosting

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/desain-gratis/sitehost/repository/blob"
	"github.com/desain-gratis/sitehost/repository/site"
	"github.com/desain-gratis/sitehost/types/entity"
	types "github.com/desain-gratis/sitehost/types/http"
	usecase "github.com/desain-gratis/sitehost/usecase/site"
)

const EntryPointFile = "index.html"

// how many blob writes of one batch may run at the same time
const uploadConcurrency = 4

var _ usecase.Usecase = &handler{}

type handler struct {
	siteRepo site.Repository
	blobRepo blob.Repository
}

func New(siteRepo site.Repository, blobRepo blob.Repository) *handler {
	return &handler{
		siteRepo: siteRepo,
		blobRepo: blobRepo,
	}
}

func (h *handler) Deploy(ctx context.Context, siteName, owner string, files []entity.UploadFile) (*entity.DeployResult, *types.CommonError) {
	if siteName == "" || len(files) == 0 {
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: "Site name and files are required."},
			},
		}
	}

	// The entry point verdict comes before the duplicate verdict, also when
	// one batch violates both rules.
	hasEntryPoint := false
	duplicate := ""
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if f.Name == EntryPointFile {
			hasEntryPoint = true
		}
		if _, ok := seen[f.Name]; ok && duplicate == "" {
			duplicate = f.Name
		}
		seen[f.Name] = struct{}{}
	}
	if !hasEntryPoint {
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusBadRequest, Code: "MISSING_ENTRY_POINT", Message: "Deployment failed: index.html not found."},
			},
		}
	}
	if duplicate != "" {
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusBadRequest, Code: "DUPLICATE_FILENAME", Message: "Deployment failed: file '" + duplicate + "' appears more than once."},
			},
		}
	}

	// Optimistic check so most name clashes fail before any blob write.
	// The manifest store insert below stays the real authority.
	_, errGet := h.siteRepo.GetByName(ctx, siteName)
	if errGet == nil {
		return nil, nameConflict(siteName)
	}
	if !hasCode(errGet, "NOT_FOUND") {
		return nil, errGet
	}

	records := make([]entity.FileRecord, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, f := range files {
		g.Go(func() error {
			data, errPut := h.blobRepo.Put(gctx, f.ContentType, f.Payload)
			if errPut != nil {
				return errPut.Err()
			}
			records[i] = entity.FileRecord{
				Filename:    f.Name,
				BlobID:      data.ID,
				ContentType: f.ContentType,
				UploadedAt:  data.CreatedAt,
			}
			return nil
		})
	}

	if errUpload := g.Wait(); errUpload != nil {
		// no orphans may survive a failed batch, also when the client hung up
		h.reclaim(context.WithoutCancel(ctx), records)
		log.Err(errUpload).Msgf("Deployment of '%v' failed during blob write, batch rolled back", siteName)
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusInternalServerError, Code: "UPLOAD_FAILED", Message: "An error occurred on the server."},
			},
		}
	}

	now := time.Now()
	_, errCreate := h.siteRepo.CreateIfAbsent(ctx, entity.Site{
		SiteName:  siteName,
		Owner:     owner,
		Files:     records,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errCreate != nil {
		// a concurrent deployment may have won the name; either way the
		// manifest never references these blobs
		h.reclaim(context.WithoutCancel(ctx), records)
		return nil, errCreate
	}

	return &entity.DeployResult{
		SiteName: siteName,
		URL:      siteURL(siteName),
	}, nil
}

func (h *handler) List(ctx context.Context, owner string) ([]string, *types.CommonError) {
	sites, err := h.siteRepo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(sites))
	for _, s := range sites {
		names = append(names, s.SiteName)
	}
	return names, nil
}

func (h *handler) Details(ctx context.Context, siteName, owner string) (*entity.SiteDetails, *types.CommonError) {
	data, err := h.siteRepo.GetByName(ctx, siteName)
	if err != nil {
		return nil, err
	}

	if data.Owner != owner {
		// same response as an absent site, do not leak existence
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusNotFound, Code: "NOT_FOUND", Message: "Site not found."},
			},
		}
	}

	files := make([]string, 0, len(data.Files))
	for _, f := range data.Files {
		files = append(files, f.Filename)
	}

	return &entity.SiteDetails{
		SiteName: data.SiteName,
		URL:      siteURL(data.SiteName),
		Files:    files,
	}, nil
}

func (h *handler) Retire(ctx context.Context, siteName, owner string) (*entity.RetireResult, *types.CommonError) {
	data, err := h.siteRepo.DeleteByNameAndOwner(ctx, siteName, owner)
	if err != nil {
		return nil, err
	}

	// The manifest is gone for good at this point. Blob reclamation is
	// best-effort: failures are reported for a future sweep, never used to
	// resurrect the site.
	var leaked []string
	cleanupCtx := context.WithoutCancel(ctx)
	for _, f := range data.Files {
		_, errDelete := h.blobRepo.Delete(cleanupCtx, f.BlobID)
		if errDelete != nil {
			log.Err(errDelete.Err()).Msgf("Retiring '%v': blob '%v' not reclaimed", siteName, f.BlobID)
			leaked = append(leaked, f.BlobID)
		}
	}

	return &entity.RetireResult{
		SiteName: siteName,
		Leaked:   leaked,
	}, nil
}

func (h *handler) ResolveFile(ctx context.Context, siteName, fileName string) (io.ReadCloser, *entity.FileRecord, *types.CommonError) {
	data, err := h.siteRepo.GetByName(ctx, siteName)
	if err != nil {
		if hasCode(err, "NOT_FOUND") {
			return nil, nil, &types.CommonError{
				Errors: []types.Error{
					{HTTPCode: http.StatusNotFound, Code: "SITE_NOT_FOUND", Message: "Site not found"},
				},
			}
		}
		return nil, nil, err
	}

	var record *entity.FileRecord
	for i, f := range data.Files {
		if f.Filename == fileName {
			record = &data.Files[i]
			break
		}
	}
	if record == nil {
		return nil, nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusNotFound, Code: "FILE_NOT_FOUND", Message: "File not found"},
			},
		}
	}

	payload, _, errGet := h.blobRepo.Get(ctx, record.BlobID)
	if errGet != nil {
		if hasCode(errGet, "BLOB_NOT_FOUND") {
			// manifest references a blob that is gone. This must never look
			// like an ordinary missing file to the outside.
			log.Error().Msgf("Manifest of '%v' references missing blob '%v' for file '%v'", siteName, record.BlobID, fileName)
			return nil, nil, &types.CommonError{
				Errors: []types.Error{
					{HTTPCode: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: "Server error"},
				},
			}
		}
		return nil, nil, errGet
	}

	return payload, record, nil
}

// reclaim deletes every blob the batch managed to write. Records that never
// got a blob id are skipped.
func (h *handler) reclaim(ctx context.Context, records []entity.FileRecord) {
	for _, r := range records {
		if r.BlobID == "" {
			continue
		}
		_, err := h.blobRepo.Delete(ctx, r.BlobID)
		if err != nil {
			log.Err(err.Err()).Msgf("Rollback: blob '%v' not reclaimed", r.BlobID)
		}
	}
}

func siteURL(siteName string) string {
	return "/sites/" + siteName + "/" + EntryPointFile
}

func nameConflict(siteName string) *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{HTTPCode: http.StatusBadRequest, Code: "NAME_CONFLICT", Message: "Site '" + siteName + "' already exists."},
		},
	}
}

func hasCode(err *types.CommonError, code string) bool {
	if err == nil {
		return false
	}
	for _, e := range err.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}
