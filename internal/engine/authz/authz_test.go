package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerline/internal/engine/authz"
)

func TestAllow(t *testing.T) {
	cases := []struct {
		role   string
		action string
		want   bool
	}{
		{"member", authz.ActionTaskWrite, true},
		{"member", authz.ActionTimeWrite, true},
		{"member", authz.ActionClientWrite, false},
		{"member", authz.ActionInvoiceRead, false},
		{"manager", authz.ActionInvoiceWrite, true},
		{"manager", authz.ActionPaymentWrite, true},
		{"manager", authz.ActionMemberManage, false},
		{"manager", authz.ActionEventRead, false},
		{"admin", authz.ActionMemberManage, true},
		{"admin", authz.ActionCommentModerate, true},
		{"admin", authz.ActionEventRead, true},
		{"owner", authz.ActionOrgUpdate, true},
		{"owner", authz.ActionInvoiceWrite, true},
		{"intern", authz.ActionTaskRead, false},
		{"owner", "no.such.action", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, authz.Allow(tc.role, tc.action), "%s / %s", tc.role, tc.action)
	}
}

func TestRequire(t *testing.T) {
	require.NoError(t, authz.Require("owner", authz.ActionInvoiceWrite))

	err := authz.Require("member", authz.ActionInvoiceWrite)
	require.Error(t, err)
	var forbidden authz.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, authz.ActionInvoiceWrite, forbidden.Action)
}
