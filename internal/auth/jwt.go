package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleKiosk is the role carried by tokens issued to attendance capture devices.
const RoleKiosk = "kiosk"

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrIssuerMismatch = errors.New("issuer mismatch")
)

// TokenPair holds access and refresh tokens for one device.
type TokenPair struct {
	DeviceID     string    `json:"device_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Claims is the JWT payload of a device token.
type Claims struct {
	Role  string `json:"role"`
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 device tokens.
type Issuer struct {
	Name       string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer returns an Issuer signing with key.
func NewIssuer(name, key string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{Name: name, Key: []byte(key), AccessTTL: accessTTL, RefreshTTL: refreshTTL, now: time.Now}
}

// Issue issues signed access and refresh tokens for deviceID.
func (i *Issuer) Issue(deviceID, label string) (TokenPair, error) {
	now := i.now()
	accessExp := now.Add(i.AccessTTL)
	refreshExp := now.Add(i.RefreshTTL)

	access, err := i.sign(deviceID, label, "access", now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.sign(deviceID, label, "refresh", now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		DeviceID:     deviceID,
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (i *Issuer) sign(deviceID, label, kind string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role:  RoleKiosk,
		Kind:  kind,
		Label: label,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.Name,
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Key)
}

// Parse validates a token and returns claims.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.Key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if i.Name != "" && claims.Issuer != i.Name {
		return Claims{}, ErrIssuerMismatch
	}
	return *claims, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (i *Issuer) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := i.Parse(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Kind != "refresh" {
		return TokenPair{}, ErrInvalidToken
	}
	return i.Issue(claims.Subject, claims.Label)
}
