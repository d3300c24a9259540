package siteapi

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/sitehost/delivery/helper"
	"github.com/desain-gratis/sitehost/repository/limiter"
	"github.com/desain-gratis/sitehost/types/entity"
	types "github.com/desain-gratis/sitehost/types/http"
	"github.com/desain-gratis/sitehost/usecase/site"
	"github.com/desain-gratis/sitehost/utility/session"
)

// whole multipart deploy body
const maximumDeployLength = 100 << 20

// in-memory threshold for multipart parsing, larger parts spill to disk
const multipartMemory = 32 << 20

const deployLimitKey = "deploy"

type service struct {
	uc           site.Usecase
	sessions     session.Utility
	limiterRepo  limiter.Repository
	deployLimit  int
	deployWindow time.Duration
}

func New(
	uc site.Usecase,
	sessions session.Utility,
	limiterRepo limiter.Repository,
	deployLimit int,
	deployWindow time.Duration,
) *service {
	return &service{
		uc:           uc,
		sessions:     sessions,
		limiterRepo:  limiterRepo,
		deployLimit:  deployLimit,
		deployWindow: deployWindow,
	}
}

// List returns the site names owned by the requester
func (i *service) List(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	owner, errAuth := helper.OwnerFromRequest(r, i.sessions)
	if errAuth != nil {
		writeError(w, errAuth)
		return
	}

	names, err := i.uc.List(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, names)
}

func (i *service) Details(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	owner, errAuth := helper.OwnerFromRequest(r, i.sessions)
	if errAuth != nil {
		writeError(w, errAuth)
		return
	}

	details, err := i.uc.Details(r.Context(), p.ByName("siteName"), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, details)
}

func (i *service) Deploy(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	owner, errAuth := helper.OwnerFromRequest(r, i.sessions)
	if errAuth != nil {
		writeError(w, errAuth)
		return
	}

	if errLimit := i.checkDeployAllowance(r, owner); errLimit != nil {
		writeError(w, errLimit)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maximumDeployLength)
	if errParse := r.ParseMultipartForm(multipartMemory); errParse != nil {
		writeError(w, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: "Failed to parse upload. Make sure the deployment does not exceed 100Mb"},
			},
		})
		return
	}

	siteName := r.FormValue("siteName")

	var headers []*multipartFile
	defer func() {
		for _, f := range headers {
			f.payload.Close()
		}
	}()

	files := make([]entity.UploadFile, 0)
	for _, fh := range r.MultipartForm.File["files"] {
		f, errOpen := fh.Open()
		if errOpen != nil {
			log.Err(errOpen).Msgf("Cannot open uploaded part '%v'", fh.Filename)
			writeError(w, &types.CommonError{
				Errors: []types.Error{
					{HTTPCode: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: "An error occurred on the server."},
				},
			})
			return
		}
		headers = append(headers, &multipartFile{payload: f})

		files = append(files, entity.UploadFile{
			Name:        fh.Filename,
			ContentType: partContentType(fh.Filename, fh.Header.Get("Content-Type")),
			Payload:     f,
		})
	}

	result, err := i.uc.Deploy(r.Context(), siteName, owner, files)
	if err != nil {
		writeError(w, err)
		return
	}

	if errIncr := i.limiterRepo.Increment(r.Context(), owner, deployLimitKey, i.deployWindow); errIncr != nil {
		log.Err(errIncr.Err()).Msgf("Cannot increment deploy counter for '%v'", owner)
	}

	writeSuccess(w, http.StatusCreated, result)
}

func (i *service) Delete(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	owner, errAuth := helper.OwnerFromRequest(r, i.sessions)
	if errAuth != nil {
		writeError(w, errAuth)
		return
	}

	result, err := i.uc.Retire(r.Context(), p.ByName("siteName"), owner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

// ServeFile is the public read path, no session needed
func (i *service) ServeFile(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	payload, record, err := i.uc.ResolveFile(r.Context(), p.ByName("siteName"), p.ByName("fileName"))
	if err != nil {
		// plain text, this is what a browser will render
		status, message := flatten(err)
		http.Error(w, message, status)
		return
	}
	defer payload.Close()

	w.Header().Set("Content-Type", record.ContentType)
	w.WriteHeader(http.StatusOK)

	_, errCopy := io.Copy(w, payload)
	if errCopy != nil {
		log.Err(errCopy).Msgf("Aborted while streaming '%v' of site '%v'", record.Filename, p.ByName("siteName"))
	}
}

func (i *service) checkDeployAllowance(r *http.Request, owner string) *types.CommonError {
	if i.deployLimit <= 0 {
		return nil
	}

	counter, _, err := i.limiterRepo.Get(r.Context(), owner, deployLimitKey)
	if err != nil {
		// fail open, a broken counter store should not block deployments
		log.Err(err.Err()).Msgf("Cannot read deploy counter for '%v'", owner)
		return nil
	}

	if counter >= i.deployLimit {
		return &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusTooManyRequests, Code: "TOO_MANY_REQUESTS", Message: "Deployment limit reached, please try again later."},
			},
		}
	}

	return nil
}

type multipartFile struct {
	payload io.ReadCloser
}

func partContentType(filename, fromHeader string) string {
	if fromHeader != "" {
		return fromHeader
	}
	byExt := mime.TypeByExtension(filepath.Ext(filename))
	if byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

func writeSuccess(w http.ResponseWriter, status int, result any) {
	payload, err := json.Marshal(&types.CommonResponse{
		Success: result,
	})
	if err != nil {
		log.Err(err).Msgf("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

func writeError(w http.ResponseWriter, err *types.CommonError) {
	err = maskForbidden(err)
	status, _ := flatten(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(types.SerializeError(err))
}

// maskForbidden keeps the FORBIDDEN outcome internal. A stranger probing
// someone else's site must receive exactly the same response as for an
// absent site, so existence never leaks through the body.
func maskForbidden(err *types.CommonError) *types.CommonError {
	if err == nil {
		return nil
	}
	for _, e := range err.Errors {
		if e.Code == "FORBIDDEN" {
			log.Warn().Msgf("Denied mutation on a site owned by someone else")
			return &types.CommonError{
				Errors: []types.Error{
					{HTTPCode: http.StatusNotFound, Code: "NOT_FOUND", Message: "Site not found."},
				},
			}
		}
	}
	return err
}

func flatten(err *types.CommonError) (status int, message string) {
	status = http.StatusInternalServerError
	message = "Server error"
	if err != nil && len(err.Errors) > 0 {
		if err.Errors[0].HTTPCode != 0 {
			status = err.Errors[0].HTTPCode
		}
		message = err.Errors[0].Message
	}
	return status, message
}
