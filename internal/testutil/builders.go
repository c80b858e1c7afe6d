package testutil

import (
	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// PrincipalBuilder provides a fluent interface for building principals in tests.
type PrincipalBuilder struct {
	p domainauth.Principal
}

// NewPrincipal creates a PrincipalBuilder with a student default.
func NewPrincipal() *PrincipalBuilder {
	return &PrincipalBuilder{
		p: domainauth.Principal{
			ID:          "1",
			DisplayName: "Ahmet Yılmaz",
			Email:       "ahmet.yilmaz@okul.com",
			Role:        domainauth.RoleStudent,
			Grade:       "9-A",
		},
	}
}

// WithID sets the principal ID.
func (b *PrincipalBuilder) WithID(id string) *PrincipalBuilder {
	b.p.ID = id
	return b
}

// WithEmail sets the email.
func (b *PrincipalBuilder) WithEmail(email string) *PrincipalBuilder {
	b.p.Email = email
	return b
}

// WithName sets the display name.
func (b *PrincipalBuilder) WithName(name string) *PrincipalBuilder {
	b.p.DisplayName = name
	return b
}

// WithRole sets the role and clears the grade for non-students.
func (b *PrincipalBuilder) WithRole(role domainauth.Role) *PrincipalBuilder {
	b.p.Role = role
	if role != domainauth.RoleStudent {
		b.p.Grade = ""
	}
	return b
}

// WithGrade sets the grade.
func (b *PrincipalBuilder) WithGrade(grade string) *PrincipalBuilder {
	b.p.Grade = grade
	return b
}

// Build returns the principal.
func (b *PrincipalBuilder) Build() domainauth.Principal {
	return b.p
}
