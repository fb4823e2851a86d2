package mappings

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hermes-erp/hermes/internal/accounting"
)

// Role is a semantic posting slot resolved to a concrete account code.
type Role string

const (
	RoleAccountsReceivable Role = "accounts-receivable"
	RoleSalesRevenue       Role = "sales-revenue"
	RoleTaxPayable         Role = "tax-payable"
	RoleInventoryAsset     Role = "inventory-asset"
	RoleCostOfGoodsSold    Role = "cost-of-goods-sold"
	RolePayrollExpense     Role = "payroll-expense"
	RolePayrollPayable     Role = "payroll-payable"
	RolePayrollAccrual     Role = "payroll-accrual"
	RoleAccountsPayable    Role = "accounts-payable"
	RoleCash               Role = "cash"
)

// Roles lists every role the posting engine knows about.
var Roles = []Role{
	RoleAccountsReceivable,
	RoleSalesRevenue,
	RoleTaxPayable,
	RoleInventoryAsset,
	RoleCostOfGoodsSold,
	RolePayrollExpense,
	RolePayrollPayable,
	RolePayrollAccrual,
	RoleAccountsPayable,
	RoleCash,
}

// Defaults returns the stock chart of accounts codes for every role.
func Defaults() RoleMap {
	return RoleMap{
		RoleAccountsReceivable: "130505",
		RoleSalesRevenue:       "413505",
		RoleTaxPayable:         "240805",
		RoleInventoryAsset:     "143505",
		RoleCostOfGoodsSold:    "613505",
		RolePayrollExpense:     "510505",
		RolePayrollPayable:     "250505",
		RolePayrollAccrual:     "261005",
		RoleAccountsPayable:    "220505",
		RoleCash:               "110505",
	}
}

// AccountMapping links a role to a ledger account.
type AccountMapping struct {
	Role        Role      `json:"role"`
	AccountCode string    `json:"account_code"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleMap resolves roles to account codes.
type RoleMap map[Role]string

// FromConfig builds a RoleMap from "role" -> "code" pairs, ignoring blanks.
func FromConfig(values map[string]string) RoleMap {
	out := make(RoleMap, len(values))
	for role, code := range values {
		role = strings.TrimSpace(strings.ToLower(role))
		code = strings.TrimSpace(code)
		if role == "" || code == "" {
			continue
		}
		out[Role(role)] = code
	}
	return out
}

// Merge returns a copy of m overlaid with the entries of other.
func (m RoleMap) Merge(other RoleMap) RoleMap {
	out := make(RoleMap, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Resolve returns the account code bound to role.
func (m RoleMap) Resolve(role Role) (string, error) {
	code, ok := m[role]
	if !ok || code == "" {
		return "", &accounting.ConfigurationError{Key: "role:" + string(role), Detail: "no account mapped"}
	}
	return code, nil
}

// Missing lists known roles without a mapping, sorted.
func (m RoleMap) Missing() []Role {
	var out []Role
	for _, role := range Roles {
		if m[role] == "" {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m RoleMap) String() string {
	parts := make([]string, 0, len(m))
	for role, code := range m {
		parts = append(parts, fmt.Sprintf("%s=%s", role, code))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
