package worker

import (
	"context"
	"fmt"
	"strings"
)

// Switch drives one kind of smart plug. address is the part after the
// scheme, e.g. "heater" for sim://heater.
type Switch interface {
	Set(ctx context.Context, address string, on bool) error
}

// Address schemes understood by Router.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeMQTT  = "mqtt"
	SchemeSim   = "sim"
)

// Router picks a Switch by the scheme of the actuator address.
type Router struct {
	switches map[string]Switch
}

func NewRouter() *Router {
	return &Router{switches: make(map[string]Switch)}
}

// Handle registers sw for scheme. HTTP switches receive the full URL.
func (r *Router) Handle(scheme string, sw Switch) *Router {
	r.switches[strings.ToLower(scheme)] = sw
	return r
}

func (r *Router) Set(ctx context.Context, address string, on bool) error {
	scheme, rest, ok := strings.Cut(address, "://")
	if !ok || rest == "" {
		return fmt.Errorf("%w: malformed address %q", ErrPermanent, address)
	}
	scheme = strings.ToLower(scheme)
	sw, ok := r.switches[scheme]
	if !ok {
		return fmt.Errorf("%w: no switch for scheme %q", ErrPermanent, scheme)
	}
	if scheme == SchemeHTTP || scheme == SchemeHTTPS {
		return sw.Set(ctx, address, on)
	}
	return sw.Set(ctx, rest, on)
}
