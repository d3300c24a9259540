package helper

import (
	"net/http"
	"strings"

	types "github.com/desain-gratis/sitehost/types/http"
	"github.com/desain-gratis/sitehost/utility/session"
)

const SessionCookieName = "jwt"

// OwnerFromRequest resolves the authenticated account id from the session
// token. The token is issued by the authentication service; here we only
// verify the signature and read the account id out of it.
func OwnerFromRequest(r *http.Request, sessions session.Utility) (string, *types.CommonError) {
	token := ""

	cookie, err := r.Cookie(SessionCookieName)
	if err == nil && cookie.Value != "" {
		token = cookie.Value
	}

	if token == "" {
		authorization := strings.Split(r.Header.Get("Authorization"), " ")
		if len(authorization) == 2 {
			token = authorization[1]
		}
	}

	if token == "" {
		return "", &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Not authorized, no token"},
			},
		}
	}

	owner, errParse := sessions.ParseToken(token)
	if errParse != nil {
		return "", &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Not authorized, token failed"},
			},
		}
	}

	return owner, nil
}

func SetError(w http.ResponseWriter, body types.Error, code int) {
	errMessage := types.SerializeError(&types.CommonError{
		Errors: []types.Error{body},
	})
	w.WriteHeader(code)
	w.Write(errMessage)
}
