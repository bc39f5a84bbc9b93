package hyperpay

import (
	"fmt"
	"strings"
)

// ReferenceScheme builds and parses merchant transaction references of the
// form "{prefix}-{siteID}-{cartID}". Prefix and site id must not contain the
// separator themselves; config validation enforces that.
type ReferenceScheme struct {
	Prefix string
	SiteID string
}

// Build returns the merchant reference for a cart.
func (s ReferenceScheme) Build(cartID string) string {
	return fmt.Sprintf("%s-%s-%s", s.Prefix, s.SiteID, cartID)
}

// Parse extracts the cart id from a merchant reference. Only the first two
// separators delimit segments, so UUID cart ids survive the round trip.
// References with the wrong shape, wrong prefix or site id, or an empty cart
// id fail with ErrInvalidReference.
func (s ReferenceScheme) Parse(reference string) (string, error) {
	parts := strings.SplitN(reference, "-", 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, reference)
	}
	if parts[0] != s.Prefix || parts[1] != s.SiteID || parts[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, reference)
	}
	return parts[2], nil
}
