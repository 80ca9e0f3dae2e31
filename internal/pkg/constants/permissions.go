package constants

const (
	ViewData            = "view_data"
	ManageCapTable      = "manage_captable"
	CreateComputation   = "create_computation"
	FinalizeComputation = "finalize_computation"
	OpenTender          = "open_tender"
	FinalizeTender      = "finalize_tender"
	SubmitBatch         = "submit_batch"
	RetryDistribution   = "retry_distribution"
	ExportTaxTotals     = "export_tax_totals"
	InviteUser          = "invite_user"
	AssignRole          = "assign_role"
)

// PermissionRoles maps each permission to roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ViewData:            {Viewer, Manager, Admin, Superadmin},
	ManageCapTable:      {Manager, Admin, Superadmin},
	CreateComputation:   {Manager, Admin, Superadmin},
	FinalizeComputation: {Admin, Superadmin},
	OpenTender:          {Manager, Admin, Superadmin},
	FinalizeTender:      {Admin, Superadmin},
	SubmitBatch:         {Admin, Superadmin},
	RetryDistribution:   {Manager, Admin, Superadmin},
	ExportTaxTotals:     {Viewer, Manager, Admin, Superadmin},
	InviteUser:          {Admin, Superadmin},
	AssignRole:          {Admin, Superadmin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
