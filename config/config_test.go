package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factorvault.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8546", cfg.ListenAddress)
	require.Equal(t, int64(60), cfg.SweepIntervalSeconds)
	require.NoError(t, cfg.Params.Validate())

	// The generated default is not startable until addresses are filled in.
	require.Error(t, Validate(cfg))
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factorvault.toml")
	raw := `
ListenAddress = ":9000"
DataDir = "/tmp/fv"
AdapterURL = "http://localhost:7000"
SweepIntervalSeconds = 30
PoolAddress = "0x00000000000000000000000000000000000000f0"
OwnerAddress = "0x0000000000000000000000000000000000000001"
UnderwriterAddress = "0x0000000000000000000000000000000000000002"
DepositAllowlist = ["0x000000000000000000000000000000000000000a"]

[Pauses]
Factoring = true

[Params]
AdminFeeBps = 100
ProtocolFeeBps = 50
TaxBps = 1000
ReserveBps = 500
GracePeriodDays = 30
ApprovalDurationSeconds = 86400
MaxQueueLength = 8
QueueDrainLimit = 4
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.True(t, cfg.Pauses.Factoring)
	require.Equal(t, uint64(100), cfg.Params.AdminFeeBps)
	require.Equal(t, uint32(8), cfg.Params.MaxQueueLength)

	owner, err := cfg.OwnerAddr()
	require.NoError(t, err)
	require.False(t, owner.IsZero())
	allow, err := Allowlist("DepositAllowlist", cfg.DepositAllowlist)
	require.NoError(t, err)
	require.Len(t, allow, 1)
}

func TestLoadRejectsBadAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factorvault.toml")
	raw := `
PoolAddress = "not-an-address"
OwnerAddress = "0x0000000000000000000000000000000000000001"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factorvault.toml")
	raw := `
PoolAddress = "0x00000000000000000000000000000000000000f0"
OwnerAddress = "0x0000000000000000000000000000000000000001"

[Params]
AdminFeeBps = 20000
ProtocolFeeBps = 1
TaxBps = 1
ReserveBps = 1
GracePeriodDays = 1
ApprovalDurationSeconds = 1
MaxQueueLength = 1
QueueDrainLimit = 1
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
