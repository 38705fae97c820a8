package model

import "go.mongodb.org/mongo-driver/bson/primitive"

// UserProfile is the user document consulted to resolve an owner identity.
// Profile management itself lives in another service; this backend only
// reads the username and appends to the owned-dataset index.
type UserProfile struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UID      string             `bson:"uid" json:"uid"`
	Username string             `bson:"username" json:"username"`
	Email    string             `bson:"email,omitempty" json:"email,omitempty"`
	Datasets []string           `bson:"datasets" json:"datasets"`
}
