package core

import (
	"fmt"
	"strings"
)

const (
	Mariano    UserID = "mariano"
	Gabriela   UserID = "gabriela"
	JuanMartin UserID = "juanmartin"
)

const (
	RoleParent       Role = "parent"
	RoleCollaborator Role = "collaborator"
)

type (
	UserID string
	Role   string

	// User is one of the three fixed household members. The capability flags
	// only gate record edits; they never change the balance math.
	User struct {
		ID                 UserID `json:"id"`
		Name               string `json:"name"`
		ShortName          string `json:"shortName"`
		Role               Role   `json:"role"`
		CanEditAll         bool   `json:"canEditAll"`
		CanManageTransfers bool   `json:"canManageTransfers"`
	}
)

var directory = []User{
	{ID: Mariano, Name: "Mariano", ShortName: "Mariano", Role: RoleParent, CanEditAll: true, CanManageTransfers: true},
	{ID: Gabriela, Name: "Gabriela Gentilucci", ShortName: "Gabriela", Role: RoleParent, CanEditAll: true, CanManageTransfers: true},
	{ID: JuanMartin, Name: "Juan Martín", ShortName: "Juan Martín", Role: RoleCollaborator},
}

// Users returns a copy of the fixed user directory.
func Users() []User {
	return append([]User(nil), directory...)
}

func LookupUser(id UserID) (User, bool) {
	for _, u := range directory {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func ParseUserID(s string) (UserID, error) {
	id := UserID(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := LookupUser(id); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownUser, s)
	}
	return id, nil
}

func (id UserID) IsParent() bool {
	return id == Mariano || id == Gabriela
}

// Other returns the other parent. It is only meaningful for parents.
func (id UserID) Other() UserID {
	switch id {
	case Mariano:
		return Gabriela
	case Gabriela:
		return Mariano
	}
	return ""
}

// CanEditExpense allows the record's author and anyone with CanEditAll.
func CanEditExpense(u User, e Expense) bool {
	if u.ID == "" {
		return false
	}
	return u.CanEditAll || e.CreatedBy == u.ID
}

func CanDeleteExpense(u User, e Expense) bool {
	return CanEditExpense(u, e)
}

func CanManageTransfers(u User) bool {
	return u.CanManageTransfers
}
