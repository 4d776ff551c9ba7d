// Package employees manages the merchant staff roster. Removing an employee
// must not orphan their payment links, so their transactions move to the
// company owner first.
package employees

import "time"

// Role of a staff member inside a company.
const (
	RoleOwner    = "owner"
	RoleEmployee = "employee"
)

// Employee is a staff member row.
type Employee struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// RemoveResult reports what the removal did.
type RemoveResult struct {
	ReassignedTo int64 `json:"reassigned_to"`
	Transactions int64 `json:"transactions"`
}
