package users

import (
	"github.com/pkg/errors"
)

// SeedAccount is a user created at startup with a known password
type SeedAccount struct {
	Email    string
	Password string
	Role     RoleType
}

// DemoAccounts returns one account per role for local development
func DemoAccounts() []SeedAccount {
	return []SeedAccount{
		{Email: "admin@example.com", Password: "admin123", Role: RoleAdmin},
		{Email: "staff@example.com", Password: "staff123", Role: RoleStaff},
		{Email: "customer@example.com", Password: "customer123", Role: RoleCustomer},
	}
}

// Seed creates each account that does not exist yet
func Seed(repo UserRepo, accounts []SeedAccount) error {
	for _, account := range accounts {
		if _, err := repo.GetByEmail(account.Email); err == nil {
			continue
		}
		hash, err := HashPassword(account.Password)
		if err != nil {
			return errors.Wrapf(err, "[Seed] hash password for %s", account.Email)
		}
		user := &User{Email: NormalizeEmail(account.Email), PasswordHash: hash, Role: account.Role}
		if err := repo.Create(user); err != nil {
			return errors.Wrapf(err, "[Seed] create %s", account.Email)
		}
	}
	return nil
}
