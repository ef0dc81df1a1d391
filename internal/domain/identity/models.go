package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleStaff Role = "STAFF"
	RoleAdmin Role = "ADMIN"
)

var (
	ErrNotFound        = errors.New("identity not found")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidRow      = errors.New("invalid identity row")
	ErrNegativeBalance = errors.New("leave balance cannot go below zero")
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleStaff, "EMPLOYEE":
		return RoleStaff, nil
	case RoleAdmin, "HR":
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

type Identity struct {
	ID            string     `json:"id"`
	Role          Role       `json:"role"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Department    string     `json:"department"`
	ManagerID     string     `json:"managerId,omitempty"`
	JobRole       string     `json:"jobRole,omitempty"`
	MonthlyIncome float64    `json:"monthlyIncome"`
	LeaveBalance  float64    `json:"leaveBalance"`
	HireDate      *time.Time `json:"hireDate,omitempty"`
}

// Caller is the authenticated principal behind a request.
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanView reports whether the caller may read data owned by employeeID.
func (c Caller) CanView(employeeID string) bool {
	return c.IsAdmin() || (c.ID != "" && c.ID == employeeID)
}

// Validate normalizes a dataset row in place.
func (i *Identity) Validate() error {
	i.ID = strings.TrimSpace(i.ID)
	if i.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRow)
	}
	if i.Role == "" {
		i.Role = RoleStaff
	}
	role, err := ParseRole(string(i.Role))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRow, i.ID, err)
	}
	i.Role = role
	i.Email = strings.ToLower(strings.TrimSpace(i.Email))
	i.Name = strings.TrimSpace(i.Name)
	if i.LeaveBalance < 0 {
		return fmt.Errorf("%w: %s: leave balance cannot be negative", ErrInvalidRow, i.ID)
	}
	if i.MonthlyIncome < 0 {
		return fmt.Errorf("%w: %s: monthly income cannot be negative", ErrInvalidRow, i.ID)
	}
	return nil
}
