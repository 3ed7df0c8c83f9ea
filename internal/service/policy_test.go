package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/wishroom/internal/models"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		check   func(t *testing.T, p Policy)
		wantErr bool
	}{
		{
			name: "empty document keeps defaults",
			doc:  "",
			check: func(t *testing.T, p Policy) {
				require.Equal(t, DefaultPolicy(), p)
			},
		},
		{
			name: "overrides",
			doc: `
max_rooms_per_account: 5
operation_timeout: 5s
tiers:
  pro:
    max_participants: 20
    max_wishes_per_member: 3
`,
			check: func(t *testing.T, p Policy) {
				require.Equal(t, 5, p.MaxRoomsPerAccount)
				require.Equal(t, 5*time.Second, p.OperationTimeout)
				require.Equal(t, models.TierLimits{MaxParticipants: 20, MaxWishesPerMember: 3}, p.Tiers[models.TierPro])
				require.Equal(t, models.TierLimits{MaxParticipants: 5, MaxWishesPerMember: 1}, p.Tiers[models.TierFree])
			},
		},
		{
			name:    "unknown field",
			doc:     "max_roms: 3\n",
			wantErr: true,
		},
		{
			name:    "unknown tier",
			doc:     "tiers:\n  gold:\n    max_participants: 1\n    max_wishes_per_member: 1\n",
			wantErr: true,
		},
		{
			name:    "wish length above schema",
			doc:     "max_wish_length: 500\n",
			wantErr: true,
		},
		{
			name:    "zero tier limit",
			doc:     "tiers:\n  free:\n    max_participants: 0\n    max_wishes_per_member: 1\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePolicy([]byte(tt.doc))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	require.Equal(t, DefaultPolicy(), p)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("code_attempts: 7\n"), 0o600))

	p, err = LoadPolicy(path)
	require.NoError(t, err)
	require.Equal(t, 7, p.CodeAttempts)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
