package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagopa/interop-platform-state/internal/config"
	"github.com/pagopa/interop-platform-state/internal/validation"
)

func TestSelectDomains(t *testing.T) {
	all, err := selectDomains(nil)
	require.NoError(t, err)
	require.Equal(t, config.Domains, all)

	some, err := selectDomains([]string{"purpose"})
	require.NoError(t, err)
	require.Equal(t, []string{"purpose"}, some)

	_, err = selectDomains([]string{"purpose", "billing"})
	require.Error(t, err)
}

func TestTokenRequestFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assertion.jwt")
	require.NoError(t, os.WriteFile(path, []byte("  header.payload.signature\n"), 0o600))

	tests := []struct {
		name    string
		flags   tokenRequestFlags
		want    string
		wantErr bool
	}{
		{
			name:  "inline",
			flags: tokenRequestFlags{clientID: "c", assertion: "a.b.c"},
			want:  "a.b.c",
		},
		{
			name:  "from file",
			flags: tokenRequestFlags{clientID: "c", assertionFile: path},
			want:  "header.payload.signature",
		},
		{
			name:    "both",
			flags:   tokenRequestFlags{assertion: "a.b.c", assertionFile: path},
			wantErr: true,
		},
		{
			name:    "none",
			flags:   tokenRequestFlags{clientID: "c"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.flags.assertionType = validation.AssertionType
			tt.flags.grantType = validation.GrantType

			req, err := tt.flags.request()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, req.Assertion)
			require.Equal(t, "c", req.ClientID)
			require.Equal(t, validation.GrantType, req.GrantType)
		})
	}
}
