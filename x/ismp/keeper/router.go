package keeper

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/celestiaorg/ismp/x/ismp/types"
)

// Router maps module identifiers to the application modules receiving their datagrams.
// Requests are routed by their To field, responses and timeouts by the From field of the request.
type Router struct {
	modules map[string]types.IsmpModule
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{modules: make(map[string]types.IsmpModule)}
}

// RegisterModule registers module under id. It panics if id is already taken.
func (r *Router) RegisterModule(id []byte, module types.IsmpModule) {
	if _, ok := r.modules[string(id)]; ok {
		panic(fmt.Sprintf("ismp module %s already registered", types.EncodeHex(id)))
	}
	r.modules[string(id)] = module
}

// Module returns the module registered under id.
func (r *Router) Module(id []byte) (types.IsmpModule, error) {
	module, ok := r.modules[string(id)]
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrModuleNotFound, "%s", types.EncodeHex(id))
	}
	return module, nil
}
