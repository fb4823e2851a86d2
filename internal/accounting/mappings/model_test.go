package mappings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hermes-erp/hermes/internal/accounting"
)

type stubRepo struct {
	rows []AccountMapping
	err  error
}

func (s *stubRepo) List(ctx context.Context) ([]AccountMapping, error) { return s.rows, s.err }

func (s *stubRepo) Upsert(ctx context.Context, role Role, code string) error {
	s.rows = append(s.rows, AccountMapping{Role: role, AccountCode: code})
	return nil
}

func TestResolveMissingRoleIsConfigurationError(t *testing.T) {
	roles := RoleMap{RoleSalesRevenue: "413505"}

	code, err := roles.Resolve(RoleSalesRevenue)
	require.NoError(t, err)
	require.Equal(t, "413505", code)

	_, err = roles.Resolve(RoleTaxPayable)
	require.ErrorIs(t, err, accounting.ErrConfiguration)
	cfgErr, ok := accounting.IsConfigurationError(err)
	require.True(t, ok)
	require.Equal(t, "role:tax-payable", cfgErr.Key)
}

func TestFromConfigNormalises(t *testing.T) {
	roles := FromConfig(map[string]string{" Sales-Revenue ": " 413505 ", "cash": ""})
	require.Equal(t, RoleMap{RoleSalesRevenue: "413505"}, roles)
	require.Contains(t, roles.Missing(), RoleCash)
}

func TestProviderOverlaysStoredRows(t *testing.T) {
	repo := &stubRepo{rows: []AccountMapping{{Role: RoleSalesRevenue, AccountCode: "414000"}}}
	provider := NewProvider(repo, RoleMap{RoleSalesRevenue: "413505", RoleTaxPayable: "240805"})

	roles, err := provider.RoleMap(context.Background())
	require.NoError(t, err)
	require.Equal(t, "414000", roles[RoleSalesRevenue])
	require.Equal(t, "240805", roles[RoleTaxPayable])

	repo.err = errors.New("boom")
	_, err = provider.RoleMap(context.Background())
	require.ErrorIs(t, err, repo.err)
	require.Contains(t, err.Error(), "mappings: load")
}

func TestProviderEmptyTableFallsBackToDefaults(t *testing.T) {
	provider := NewProvider(&stubRepo{}, RoleMap{RoleSalesRevenue: "413505"})

	roles, err := provider.RoleMap(context.Background())
	require.NoError(t, err)
	require.Equal(t, RoleMap{RoleSalesRevenue: "413505"}, roles)
}

func TestDefaultsCoverEveryRole(t *testing.T) {
	require.Empty(t, Defaults().Missing())
	merged := Defaults().Merge(FromConfig(map[string]string{"cash": "111005"}))
	require.Equal(t, "111005", merged[RoleCash])
	require.Equal(t, "110505", Defaults()[RoleCash])
}
