package users

type UserRepo interface {
	// Create assigns the next ID to user and stores it; returns ErrUserExists for a taken email
	Create(user *User) error
	GetByEmail(email string) (*User, error)
	GetByID(id int64) (*User, error)
	SetLastLogin(id int64) error
}
