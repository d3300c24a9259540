package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidSigningMethod  = errors.New("invalid signing method")
	ErrKeyIdentifierNotFound = errors.New("key identifier not found")
	ErrInvalidToken          = errors.New("invalid token")
)

const (
	ISS           = "sitehost"
	KID_HEADER    = "kid"
	ACCOUNT_CLAIM = "account_id"
)

// Utility issues & parses the HMAC signed session token (symetric key).
// The token payload is just the owner account id; credentials themselves are
// checked by the authentication service, never here.
type Utility interface {
	IssueToken(accountID string, expireAt time.Time, keyID string) (token string, err error)
	ParseToken(token string) (accountID string, err error)
	Store(keyID string, secret string) (err error)
}

type CustomClaim struct {
	jwt.StandardClaims
	AccountID string `json:"account_id"`
}

type defaultHandler struct {
	keyLock  *sync.Mutex
	hmacKeys map[string][]byte
}

func New() *defaultHandler {
	return &defaultHandler{
		keyLock:  &sync.Mutex{},
		hmacKeys: make(map[string][]byte),
	}
}

func (d *defaultHandler) Store(keyID string, secret string) (err error) {
	d.keyLock.Lock()
	defer d.keyLock.Unlock()

	d.hmacKeys[keyID] = []byte(secret)

	return nil
}

func (d *defaultHandler) IssueToken(accountID string, expireAt time.Time, keyID string) (token string, err error) {
	d.keyLock.Lock()
	signingKey, ok := d.hmacKeys[keyID]
	d.keyLock.Unlock()
	if !ok {
		return "", ErrKeyIdentifierNotFound
	}

	_token := jwt.NewWithClaims(jwt.SigningMethodHS512, CustomClaim{
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expireAt.Unix(),
			Issuer:    ISS,
		},
		AccountID: accountID,
	})
	_token.Header[KID_HEADER] = keyID

	token, err = _token.SignedString(signingKey)
	if err != nil {
		return "", err
	}

	return token, nil
}

// https://pkg.go.dev/github.com/golang-jwt/jwt#example-Parse-Hmac
func (d *defaultHandler) ParseToken(token string) (accountID string, err error) {
	parsed, err := jwt.Parse(token, func(parsed *jwt.Token) (interface{}, error) {
		if _, ok := parsed.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}

		key, ok := parsed.Header[KID_HEADER].(string)
		if !ok {
			return nil, ErrKeyIdentifierNotFound
		}

		d.keyLock.Lock()
		secret, ok := d.hmacKeys[key]
		d.keyLock.Unlock()
		if !ok {
			return nil, ErrKeyIdentifierNotFound
		}

		return secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	if !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	data, ok := claims[ACCOUNT_CLAIM]
	if !ok {
		return "", ErrInvalidToken
	}

	id, ok := data.(string)
	if !ok || id == "" {
		return "", ErrInvalidToken
	}

	return id, nil
}
