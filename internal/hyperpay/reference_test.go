package hyperpay_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeitlabs/payments-hyperpay/internal/hyperpay"
)

func TestReferenceRoundTrip(t *testing.T) {
	s := hyperpay.ReferenceScheme{Prefix: "zl", SiteID: "7"}

	ref := s.Build("42")
	require.Equal(t, "zl-7-42", ref)

	cartID, err := s.Parse(ref)
	require.NoError(t, err)
	require.Equal(t, "42", cartID)
}

func TestReferenceRoundTripUUIDCart(t *testing.T) {
	s := hyperpay.ReferenceScheme{Prefix: "zl", SiteID: "7"}
	id := "0b6cdb8e-6a18-4f8a-9c36-0d9f9c6f1c2e"

	cartID, err := s.Parse(s.Build(id))
	require.NoError(t, err)
	require.Equal(t, id, cartID)
}

func TestReferenceParseRejectsMalformed(t *testing.T) {
	s := hyperpay.ReferenceScheme{Prefix: "zl", SiteID: "7"}

	for _, ref := range []string{
		"",
		"zl",
		"zl-7",
		"zl-7-",
		"other-7-42",
		"zl-9-42",
	} {
		_, err := s.Parse(ref)
		require.ErrorIs(t, err, hyperpay.ErrInvalidReference, "reference %q", ref)
	}
}
