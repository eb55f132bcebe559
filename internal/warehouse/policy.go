package warehouse

import "fmt"

// ChildPolicy decides when image and specification rows are written for a
// product identity.
type ChildPolicy string

const (
	// ChildrenOnIdentityCreate writes children only when a product is first
	// seen. Price versions leave them alone.
	ChildrenOnIdentityCreate ChildPolicy = "identity-create"
	// ChildrenRefreshOnVersion also replaces the identity's children from
	// staging whenever a new price version is written.
	ChildrenRefreshOnVersion ChildPolicy = "refresh-on-version"
)

func ParseChildPolicy(s string) (ChildPolicy, error) {
	switch ChildPolicy(s) {
	case "", ChildrenOnIdentityCreate:
		return ChildrenOnIdentityCreate, nil
	case ChildrenRefreshOnVersion:
		return ChildrenRefreshOnVersion, nil
	default:
		return "", fmt.Errorf("unknown child policy %q", s)
	}
}
