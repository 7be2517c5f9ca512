package mixdeck

import "errors"

// Route is one of the two physical output paths selected by the switch.
type Route uint8

const (
	RoutePrimary Route = iota
	RouteSecondary
)

// Other returns the route that is not r.
func (r Route) Other() Route {
	if r == RoutePrimary {
		return RouteSecondary
	}
	return RoutePrimary
}

func (r Route) String() string {
	if r == RouteSecondary {
		return "secondary"
	}
	return "primary"
}

// Default route names, matching what the host mixer application expects.
const (
	DefaultPrimaryName   = "speakers"
	DefaultSecondaryName = "headphones"
)

var ErrUnknownRoute = errors.New("unknown route")

// RouteNames maps both routes to the device names reported to the host.
type RouteNames [2]string

// DefaultRouteNames returns speakers/headphones.
func DefaultRouteNames() RouteNames {
	return RouteNames{DefaultPrimaryName, DefaultSecondaryName}
}

// Name returns the device name for r.
func (n RouteNames) Name(r Route) string {
	if r == RouteSecondary {
		return n[1]
	}
	return n[0]
}

// Lookup resolves a device name, or "primary"/"secondary", to a route.
func (n RouteNames) Lookup(name string) (Route, error) {
	switch name {
	case n[0], "primary":
		return RoutePrimary, nil
	case n[1], "secondary":
		return RouteSecondary, nil
	}
	return RoutePrimary, ErrUnknownRoute
}
