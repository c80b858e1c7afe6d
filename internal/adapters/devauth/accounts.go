package devauth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// DemoPassword is the password of every built-in demo account.
const DemoPassword = "demo123"

// Account is one allow-listed identity with its bcrypt password hash.
type Account struct {
	Principal    domainauth.Principal
	PasswordHash []byte
}

// accountEntry is the on-disk TOML form. Exactly one of Password or PasswordHash is set.
type accountEntry struct {
	ID           string `toml:"id"`
	Email        string `toml:"email"`
	Name         string `toml:"name"`
	Role         string `toml:"role"`
	Grade        string `toml:"grade"`
	Password     string `toml:"password"`
	PasswordHash string `toml:"password_hash"`
}

type accountsFile struct {
	Accounts []accountEntry `toml:"accounts"`
}

// demoPrincipals is the built-in allow-list: one account per role.
var demoPrincipals = []domainauth.Principal{
	{ID: "1", DisplayName: "Ahmet Yılmaz", Email: "ahmet.yilmaz@okul.com", Role: domainauth.RoleStudent, Grade: "9-A"},
	{ID: "2", DisplayName: "Ayşe Demir", Email: "ayse.demir@okul.com", Role: domainauth.RoleTeacher},
	{ID: "3", DisplayName: "Mehmet Kaya", Email: "mehmet.kaya@okul.com", Role: domainauth.RoleParent},
	{ID: "4", DisplayName: "Sistem Yöneticisi", Email: "admin@okul.com", Role: domainauth.RoleAdmin},
}

// DefaultAccounts returns the built-in demo accounts, all using DemoPassword.
func DefaultAccounts(cost int) ([]Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), normalizeCost(cost))
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}
	out := make([]Account, 0, len(demoPrincipals))
	for _, p := range demoPrincipals {
		out = append(out, Account{Principal: p, PasswordHash: hash})
	}
	return out, nil
}

// LoadAccounts reads an allow-list from a TOML file. Plaintext passwords are hashed with cost.
func LoadAccounts(path string, cost int) ([]Account, error) {
	var f accountsFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decode accounts file: %w", err)
	}
	if len(f.Accounts) == 0 {
		return nil, errors.New("accounts file defines no accounts")
	}

	seen := make(map[string]struct{}, len(f.Accounts))
	out := make([]Account, 0, len(f.Accounts))
	for i, e := range f.Accounts {
		acct, err := e.toAccount(cost)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		if _, dup := seen[acct.Principal.Email]; dup {
			return nil, fmt.Errorf("account %d: duplicate email %q", i, acct.Principal.Email)
		}
		seen[acct.Principal.Email] = struct{}{}
		out = append(out, acct)
	}
	return out, nil
}

func (e accountEntry) toAccount(cost int) (Account, error) {
	email := NormalizeEmail(e.Email)
	if email == "" {
		return Account{}, errors.New("email is required")
	}
	if e.ID == "" {
		return Account{}, errors.New("id is required")
	}
	role, err := domainauth.ParseRole(e.Role)
	if err != nil {
		return Account{}, err
	}

	var hash []byte
	switch {
	case e.PasswordHash != "":
		if _, err := bcrypt.Cost([]byte(e.PasswordHash)); err != nil {
			return Account{}, fmt.Errorf("invalid password_hash: %w", err)
		}
		hash = []byte(e.PasswordHash)
	case e.Password != "":
		hash, err = bcrypt.GenerateFromPassword([]byte(e.Password), normalizeCost(cost))
		if err != nil {
			return Account{}, fmt.Errorf("hash password: %w", err)
		}
	default:
		return Account{}, errors.New("password or password_hash is required")
	}

	name := strings.TrimSpace(e.Name)
	if name == "" {
		name = email
	}
	return Account{
		Principal: domainauth.Principal{
			ID:          e.ID,
			DisplayName: name,
			Email:       email,
			Role:        role,
			Grade:       strings.TrimSpace(e.Grade),
		},
		PasswordHash: hash,
	}, nil
}

// NormalizeEmail trims and lower-cases an email address for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeCost(cost int) int {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return cost
}
