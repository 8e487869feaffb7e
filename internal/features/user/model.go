package user

import (
	"fmt"
	"slices"

	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"
)

// Roles known to the loan origination workflow.
const (
	RoleAdmin               = "Admin"
	RoleMaker               = "Maker"
	RoleChecker             = "Checker"
	RoleUnderwriter         = "Underwriter"
	RoleDisbursementOfficer = "DisbursementOfficer"
	RoleAuditor             = "Auditor"
)

var Roles = []string{RoleAdmin, RoleMaker, RoleChecker, RoleUnderwriter, RoleDisbursementOfficer, RoleAuditor}

var ErrUserNotFound = fmt.Errorf("user %w", sentinel.ErrNotFound)

func IsKnownRole(role string) bool {
	return slices.Contains(Roles, role)
}
