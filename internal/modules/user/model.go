// README: Users as far as notification routing and authorization need them.
package user

import "rxflow/internal/types"

type Role string

const (
	RoleAdmin           Role = "admin"
	RolePharmacyStaff   Role = "pharmacy_staff"
	RoleDeliveryOfficer Role = "delivery_officer"
	RoleCustomer        Role = "customer"
	RoleDoctor          Role = "doctor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePharmacyStaff, RoleDeliveryOfficer, RoleCustomer, RoleDoctor:
		return true
	}
	return false
}

type Contact struct {
	ID    types.ID `json:"id"`
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
	Email string   `json:"email"`
	Role  Role     `json:"role"`
}
