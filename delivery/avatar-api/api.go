package avatarapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/sitehost/delivery/helper"
	types "github.com/desain-gratis/sitehost/types/http"
	"github.com/desain-gratis/sitehost/usecase/avatar"
	"github.com/desain-gratis/sitehost/utility/session"
)

const maximumAvatarLength = 8 << 20

type service struct {
	uc       avatar.Usecase
	sessions session.Utility
}

func New(uc avatar.Usecase, sessions session.Utility) *service {
	return &service{
		uc:       uc,
		sessions: sessions,
	}
}

func (i *service) Upload(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	owner, errAuth := helper.OwnerFromRequest(r, i.sessions)
	if errAuth != nil {
		writeError(w, errAuth)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maximumAvatarLength)
	if errParse := r.ParseMultipartForm(maximumAvatarLength); errParse != nil {
		writeError(w, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: "Please upload a file"},
			},
		})
		return
	}

	headers := r.MultipartForm.File["avatar"]
	if len(headers) != 1 {
		writeError(w, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: "Please upload exactly one file in the 'avatar' field"},
			},
		})
		return
	}

	f, errOpen := headers[0].Open()
	if errOpen != nil {
		log.Err(errOpen).Msgf("Cannot open uploaded avatar")
		writeError(w, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: "Server error during picture upload"},
			},
		})
		return
	}
	defer f.Close()

	result, err := i.uc.Upload(r.Context(), owner, headers[0].Header.Get("Content-Type"), f)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

// Serve is public: avatar URLs are shared, the random id is the only guard
func (i *service) Serve(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := strings.TrimPrefix(p.ByName("id"), "/")

	payload, data, err := i.uc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer payload.Close()

	w.Header().Set("Content-Type", data.ContentType)
	w.WriteHeader(http.StatusOK)

	_, errCopy := io.Copy(w, payload)
	if errCopy != nil {
		log.Err(errCopy).Msgf("Aborted while streaming avatar '%v'", id)
	}
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
	status := http.StatusInternalServerError
	if len(err.Errors) > 0 && err.Errors[0].HTTPCode != 0 {
		status = err.Errors[0].HTTPCode
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(types.SerializeError(err))
}
