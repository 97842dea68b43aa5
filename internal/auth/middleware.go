package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"academy/internal/apperr"
	"academy/internal/model"
)

const actorKey = "actor"

// Resolver turns token claims into the authoritative actor.
type Resolver interface {
	Resolve(ctx context.Context, actor model.Actor) (model.Actor, error)
}

// Authenticate enforces bearer JWT tokens signed with HS256 and stores the actor on the context.
// A nil resolver trusts the token's role.
func Authenticate(signingKey, issuer string, resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			abort(c, apperr.E(apperr.Unauthorized, "missing bearer token"))
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			abort(c, apperr.E(apperr.Unauthorized, "invalid token"))
			return
		}
		actor := model.Actor{
			Email: model.NormalizeEmail(claims.Subject),
			Name:  claims.Name,
			Role:  strings.ToLower(claims.Role),
		}
		if resolver != nil {
			if actor, err = resolver.Resolve(c.Request.Context(), actor); err != nil {
				abort(c, err)
				return
			}
		}
		SetActor(c, actor)
		c.Next()
	}
}

// RequireRole rejects actors holding none of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abort(c, apperr.E(apperr.Unauthorized, "missing actor"))
			return
		}
		if !actor.HasRole(roles...) {
			abort(c, apperr.E(apperr.Forbidden, "role %s may not do this", actor.Role))
			return
		}
		c.Next()
	}
}

// SetActor stores actor on the request context.
func SetActor(c *gin.Context, actor model.Actor) {
	c.Set(actorKey, actor)
}

// ActorFrom returns the authenticated actor.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

func abort(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{"error": apperr.Message(err), "code": kind})
}
