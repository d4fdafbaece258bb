package flows

import (
	"errors"
	"time"

	"github.com/MrEthical07/tokenAuth/jwt"
	"github.com/MrEthical07/tokenAuth/token"
)

// ClassifyDeps captures classification dependencies.
type ClassifyDeps struct {
	Verify func(string) (*jwt.Claims, error)
}

// RunClassify maps a raw token to its status at now. It has no side effects.
func RunClassify(tokenStr string, now time.Time, deps ClassifyDeps) token.Result {
	claims, err := deps.Verify(tokenStr)
	if err != nil {
		if errors.Is(err, token.ErrSignatureMismatch) {
			return token.Result{Status: token.StatusSignatureMismatch}
		}
		return token.Result{Status: token.StatusMalformed}
	}

	res := token.Result{
		Status:    token.StatusValid,
		Kind:      claims.Kind(),
		Identity:  claims.Identity(),
		TokenID:   claims.ID,
		Family:    claims.Family,
		IssuedAt:  claims.IssuedAtTime(),
		ExpiresAt: claims.ExpiresAtTime(),
	}
	if !now.Before(res.ExpiresAt) {
		return token.Result{
			Status:    token.StatusExpired,
			Kind:      res.Kind,
			IssuedAt:  res.IssuedAt,
			ExpiresAt: res.ExpiresAt,
		}
	}
	return res
}
