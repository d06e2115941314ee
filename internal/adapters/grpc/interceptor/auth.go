package interceptor

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	authorizationKey = "authorization"
	bearerPrefix     = "bearer "
	// HealthMethodPrefix はヘルスチェック用のメソッドで、認証を要求しません。
	HealthMethodPrefix = "/grpc.health.v1.Health/"
)

// GatewayClaims はゲートウェイが発行するトークンのクレームです。
type GatewayClaims struct {
	jwt.RegisteredClaims
}

type claimsContextKey struct{}

// ClaimsFromContext は認証済みのクレームを返します。
func ClaimsFromContext(ctx context.Context) (*GatewayClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*GatewayClaims)
	return claims, ok
}

// Authenticator はゲートウェイからの HS256 ベアラートークンを検証します。
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator は Authenticator を生成します。
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Unary は認証を行う UnaryServerInterceptor を返します。
func (a *Authenticator) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, HealthMethodPrefix) {
			return handler(ctx, req)
		}

		claims, err := a.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(context.WithValue(ctx, claimsContextKey{}, claims), req)
	}
}

func (a *Authenticator) authenticate(ctx context.Context) (*GatewayClaims, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get(authorizationKey)
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing authorization header")
	}

	raw := values[0]
	if len(raw) <= len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return nil, status.Error(codes.Unauthenticated, "authorization header must be a bearer token")
	}

	claims := &GatewayClaims{}
	token, err := a.parser.ParseWithClaims(strings.TrimSpace(raw[len(bearerPrefix):]), claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token has expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	if !token.Valid {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return claims, nil
}
