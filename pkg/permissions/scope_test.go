package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScope(t *testing.T) {
	t.Run("triple", func(t *testing.T) {
		s, err := ParseScope("sales:proposals:read")
		require.NoError(t, err)
		assert.Equal(t, Scope{Module: "sales", Resource: "proposals", Action: "read"}, s)
	})

	t.Run("quadruple", func(t *testing.T) {
		s, err := ParseScope("sales:proposals:read:all")
		require.NoError(t, err)
		assert.Equal(t, "all", s.Qualifier)
	})

	t.Run("round trip", func(t *testing.T) {
		for _, raw := range []string{"sales:proposals:read", "sales:*:*:all", "*:*:*"} {
			s, err := ParseScope(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, s.String())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"", "sales", "sales:proposals", "a:b:c:d:e", "sales::read", ":proposals:read"} {
			_, err := ParseScope(raw)
			assert.Error(t, err, "expected %q to be rejected", raw)
		}
	})
}

func TestScopeMatches(t *testing.T) {
	tests := []struct {
		name    string
		granted string
		request string
		want    bool
	}{
		{"exact", "sales:proposals:read", "sales:proposals:read", true},
		{"different action", "sales:proposals:read", "sales:proposals:update", false},
		{"different resource", "sales:proposals:read", "sales:bookings:read", false},
		{"different module", "sales:proposals:read", "reports:proposals:read", false},
		{"wildcard action", "sales:proposals:*", "sales:proposals:delete", true},
		{"wildcard resource", "sales:*:read", "sales:bookings:read", true},
		{"wildcard module", "*:proposals:read", "sales:proposals:read", true},
		{"full wildcard", "*:*:*", "reports:dashboards:export", true},

		// A quadruple request needs a grant that defines the qualifier.
		{"triple grant does not cover qualifier request", "sales:proposals:read", "sales:proposals:read:all", false},
		{"full triple wildcard does not cover qualifier request", "*:*:*", "sales:proposals:read:all", false},
		{"qualifier grant matches qualifier request", "sales:proposals:read:all", "sales:proposals:read:all", true},
		{"wildcard qualifier grant", "sales:proposals:read:*", "sales:proposals:read:all", true},
		{"full quadruple wildcard", "*:*:*:all", "sales:bookings:read:all", true},

		// The other direction: a quadruple grant is not a triple grant.
		{"qualifier grant does not cover plain request", "sales:proposals:read:all", "sales:proposals:read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			granted, err := ParseScope(tt.granted)
			require.NoError(t, err)
			request, err := ParseScope(tt.request)
			require.NoError(t, err)
			assert.Equal(t, tt.want, granted.Matches(request))
		})
	}
}

func TestAnyMatches(t *testing.T) {
	granted := []Scope{
		NewScope("sales", "proposals", "read"),
		NewScope("reports", Wildcard, "read"),
	}

	assert.True(t, AnyMatches(granted, NewScope("sales", "proposals", "read")))
	assert.True(t, AnyMatches(granted, NewScope("reports", "dashboards", "read")))
	assert.False(t, AnyMatches(granted, NewScope("sales", "proposals", "delete")))
	assert.False(t, AnyMatches(nil, NewScope("sales", "proposals", "read")))
}
