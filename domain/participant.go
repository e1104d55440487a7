// Package domain contains core concepts of the chat system.
// This file defines the identity attached to every connection.
// No runtime, network, or UI logic should be added here.
package domain

type UserID string

type Role string

const (
	RoleCustomer Role = "customer"
	RoleCompany  Role = "company"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleCompany, RoleAdmin:
		return true
	default:
		return false
	}
}

// Identity is supplied by the external identity context of a connection.
type Identity struct {
	UserID UserID
	Role   Role
}
