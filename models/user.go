package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the trimmed account model this service needs: enough to identify
// an actor, gate by role, and locate a verified healthcare provider.
// Identity issuance lives in the external identity provider.
type User struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Email          string             `json:"email" bson:"email"`
	FullName       string             `json:"fullName" bson:"fullName"`
	Phone          string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Role           string             `json:"role" bson:"role"`
	Specialization string             `json:"specialization,omitempty" bson:"specialization,omitempty"`

	// STRNumber is the registration number carried by verified healthcare
	// workers; presence alone does not imply verification.
	STRNumber string `json:"strNumber,omitempty" bson:"strNumber,omitempty"`

	Location   *UserLocation `json:"location,omitempty" bson:"location,omitempty"`
	FCMToken   string        `json:"-" bson:"fcmToken,omitempty"`
	IsVerified bool          `json:"isVerified" bson:"isVerified"`
	IsActive   bool          `json:"isActive" bson:"isActive"`
	LastSeen   time.Time     `json:"lastSeen,omitempty" bson:"lastSeen,omitempty"`
	CreatedAt  time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// UserLocation is a GeoJSON point, [longitude, latitude].
type UserLocation struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty" bson:"updatedAt,omitempty"`
}

// HasCoordinates reports whether the user has a usable registered position.
func (u *User) HasCoordinates() bool {
	return u.Location != nil && len(u.Location.Coordinates) == 2
}

// Role constants
const (
	RoleUser  = "user"
	RoleNakes = "nakes" // healthcare provider (tenaga kesehatan)
	RoleAdmin = "admin"
)

// IsProvider reports whether the user is a healthcare provider.
func (u *User) IsProvider() bool { return u.Role == RoleNakes }

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
