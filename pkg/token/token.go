package token

import (
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/hertz-contrib/jwt"

	"HydroMed/config"
	"HydroMed/pkg/errors"
)

const (
	IdentityKey = "uid"
)

var (
	// 这个实例会被 middleware 和 token 包共同使用
	sharedGenerator *jwt.HertzJWTMiddleware
)

// Init 令牌由外部身份服务签发，这里只需要同一把 HS256 密钥
func Init() error {
	var err error
	sharedGenerator, err = jwt.New(&jwt.HertzJWTMiddleware{
		Key:         []byte(config.Cfg.JWTSecret),
		Timeout:     time.Duration(config.Cfg.JWTExpireMinutes) * time.Minute,
		MaxRefresh:  time.Duration(config.Cfg.JWTRefreshDays) * 24 * time.Hour,
		IdentityKey: IdentityKey,
		TimeFunc:    time.Now,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token generator: %w", err)
	}

	return nil
}

// GetGenerator 获取共享的 token 生成器（供 middleware 使用）
func GetGenerator() *jwt.HertzJWTMiddleware {
	return sharedGenerator
}

// GenerateAccessToken 为用户签发 access token，供本地调试与 agent 配置使用
func GenerateAccessToken(userID int64) (accessToken string, expiresIn int, err error) {
	if sharedGenerator == nil {
		return "", 0, errors.ErrTokenGeneratorNotInitialized
	}

	now := time.Now()
	expiresAt := now.Add(sharedGenerator.Timeout)

	claims := jwtv5.MapClaims{
		IdentityKey: strconv.FormatInt(userID, 10),
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
	}

	accessToken, err = jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(sharedGenerator.Key)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	return accessToken, int(time.Until(expiresAt).Seconds()), nil
}

// ParseUserID 校验 access token 并返回用户 ID
func ParseUserID(tokenString string) (int64, error) {
	if sharedGenerator == nil {
		return 0, errors.ErrTokenGeneratorNotInitialized
	}

	token, err := jwtv5.ParseWithClaims(tokenString, jwtv5.MapClaims{}, func(token *jwtv5.Token) (interface{}, error) {
		if token.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v, expected HS256", errors.ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return sharedGenerator.Key, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return 0, errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwtv5.MapClaims)
	if !ok {
		return 0, errors.ErrInvalidTokenClaims
	}
	return UserIDFromClaim(claims[IdentityKey])
}

// UserIDFromClaim uid 可能是字符串，也可能被 JSON 解码成 float64
func UserIDFromClaim(v interface{}) (int64, error) {
	switch uid := v.(type) {
	case string:
		id, err := strconv.ParseInt(uid, 10, 64)
		if err != nil || id <= 0 {
			return 0, errors.ErrUserIDNotFound
		}
		return id, nil
	case float64:
		if uid <= 0 {
			return 0, errors.ErrUserIDNotFound
		}
		return int64(uid), nil
	default:
		return 0, errors.ErrUserIDNotFound
	}
}
