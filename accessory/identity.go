package accessory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/efficientgo/core/errors"
)

// Identity is a USB vendor/product pair. Immutable once a device is opened.
type Identity struct {
	Vendor  uint16 `json:"vendor"`
	Product uint16 `json:"product"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%04x:%04x", id.Vendor, id.Product)
}

// ParseIdentity parses a "vvvv:pppp" hex pair.
func ParseIdentity(s string) (Identity, error) {
	vendorStr, productStr, found := strings.Cut(s, ":")
	if !found {
		return Identity{}, errors.Newf("identity %q is not of the form vvvv:pppp", s)
	}
	vendor, err := strconv.ParseUint(vendorStr, 16, 16)
	if err != nil {
		return Identity{}, errors.Wrapf(err, "bad vendor id in %q", s)
	}
	product, err := strconv.ParseUint(productStr, 16, 16)
	if err != nil {
		return Identity{}, errors.Wrapf(err, "bad product id in %q", s)
	}
	return Identity{Vendor: uint16(vendor), Product: uint16(product)}, nil
}

// IsAccessory reports whether the identity is one a device presents while
// already in accessory mode.
func (id Identity) IsAccessory() bool {
	return id.Vendor == 0x18D1 && (id.Product == 0x2D00 || id.Product == 0x2D01)
}

// AccessoryIdentities returns the identities a device re-enumerates under
// once it has entered accessory mode, with and without ADB enabled.
func AccessoryIdentities() []Identity {
	return []Identity{
		{Vendor: 0x18D1, Product: 0x2D00},
		{Vendor: 0x18D1, Product: 0x2D01},
	}
}
