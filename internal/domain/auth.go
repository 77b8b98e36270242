package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims — полезная нагрузка токена, который выпускает внешний auth-сервис.
// Если user_id нет, пользователь берется из sub.
type CustomClaims struct {
	UserID int64 `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}
