package domain

type Role string

const (
	RoleCustomer     Role = "customer"
	RoleCounterAdmin Role = "counter_admin"
	RoleSuperAdmin   Role = "super_admin"
)

func (r Role) IsStaff() bool {
	return r == RoleCounterAdmin || r == RoleSuperAdmin
}

// Actor is whoever triggered an operation. Identity is asserted by the
// gateway in front of this service.
type Actor struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

func (a *Actor) DisplayName() string {
	if a == nil || a.Name == "" {
		return "anonymous"
	}
	return a.Name
}
