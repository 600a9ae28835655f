package party

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	MemberId string `json:"member_id"`
	PartyId  string `json:"party_id"`
	jwt.RegisteredClaims
}

func (s service) generateJWT(partyId, memberId string) (string, error) {
	claims := Claims{
		MemberId: memberId,
		PartyId:  partyId,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.clock.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(s.secret))
}

func (s service) parseJWT(tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return []byte(s.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid || claims.MemberId == "" || claims.PartyId == "" {
		return nil, ErrInvalidToken
	}

	return &claims, nil
}

// ParseToken returns the identity carried by a member token.
func (s service) ParseToken(tokenString string) (*Claims, error) {
	return s.parseJWT(tokenString)
}
