package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/limyeri/howru-backend/pkg/utils"
)

type contextKey string

const userCodeKey contextKey = "userCode"

// 认证失败时返回给用户的本地化消息。
const (
	msgLoginRequired = "로그인 후 이용가능해요"
	msgLoginExpired  = "로그인이 만료되었어요."
	msgLoginInvalid  = "로그인이 유효하지 않아요."
)

// JWTAuth 校验 Bearer token 并将 userCode 写入请求上下文。
// 缺失凭证返回 403，过期或无效返回 401，预检请求直接放行。
func JWTAuth(secret string) func(http.Handler) http.Handler {
	secretKey := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				authHeader = tokenFromQuery(r)
			}
			if authHeader == "" {
				utils.RespondError(w, http.StatusForbidden, msgLoginRequired)
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			userCode, err := parseUserCode(tokenString, secretKey)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					utils.RespondError(w, http.StatusUnauthorized, msgLoginExpired)
					return
				}
				utils.RespondError(w, http.StatusUnauthorized, msgLoginInvalid)
				return
			}

			ctx := context.WithValue(r.Context(), userCodeKey, userCode)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseUserCode 解析 HS256 token 并提取 userCode 声明。
func parseUserCode(tokenString string, secretKey []byte) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, jwt.ErrTokenUnverifiable
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, jwt.ErrTokenInvalidClaims
	}

	switch v := claims["userCode"].(type) {
	case float64:
		return int64(v), nil
	case string:
		var code int64
		if _, err := fmt.Sscan(v, &code); err != nil {
			return 0, jwt.ErrTokenInvalidClaims
		}
		return code, nil
	default:
		return 0, jwt.ErrTokenInvalidClaims
	}
}

// tokenFromQuery 允许 WebSocket 客户端通过 query 参数携带 token。
func tokenFromQuery(r *http.Request) string {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

// UserCode 从请求上下文读取认证通过的用户编号。
func UserCode(ctx context.Context) (int64, bool) {
	code, ok := ctx.Value(userCodeKey).(int64)
	return code, ok
}
