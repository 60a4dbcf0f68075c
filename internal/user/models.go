package user

import "time"

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Avatar    string    `json:"avatar"`
	Role      string    `json:"role"`
	Profile   *Profile  `json:"profile,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Profile struct {
	Bio        string    `json:"bio"`
	Age        int       `json:"age"`
	FTP        float64   `json:"ftp"`
	BikeWeight float64   `json:"bikeWeight"`
	BodyWeight float64   `json:"bodyWeight"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Avatar    string `json:"avatar" validate:"omitempty,url"`
	Role      string `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

// UpdateUserRequest is a patch; nil fields are left untouched.
type UpdateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
	Avatar    *string `json:"avatar" validate:"omitempty,url"`
	Role      *string `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

type ProfileRequest struct {
	Bio        string  `json:"bio" validate:"max=1000"`
	Age        int     `json:"age" validate:"min=0,max=150"`
	FTP        float64 `json:"ftp" validate:"gte=0"`
	BikeWeight float64 `json:"bikeWeight" validate:"gte=0"`
	BodyWeight float64 `json:"bodyWeight" validate:"gte=0"`
}
