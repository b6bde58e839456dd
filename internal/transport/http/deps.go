package http

import (
	"github.com/storefront-auth-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/storefront-auth-api/internal/infrastructure/jwt"
	"github.com/storefront-auth-api/internal/infrastructure/notify"
	"github.com/storefront-auth-api/internal/infrastructure/redisstore"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	KVStore      *redisstore.Store
	CustomerRepo *dynamo.CustomerRepo
	IdentityRepo *dynamo.IdentityRepo
	Notifier     notify.Dispatcher
	JWTProvider  *jwtinfra.Provider
}
