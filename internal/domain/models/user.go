package models

import "time"

type User struct {
	ID           string         `json:"id" bson:"_id"`
	Name         string         `json:"name" bson:"name"`
	Email        string         `json:"email" bson:"email"`
	PasswordHash string         `json:"-" bson:"passwordHash"`
	Cards        Collection     `json:"cards" bson:"cards"`
	Mailbox      []TradeRequest `json:"mailbox" bson:"mailbox"`
	CreatedAt    time.Time      `json:"createdAt" bson:"createdAt"`
}

// MailboxIndex returns the position of the request in the user's mailbox or -1.
func (u *User) MailboxIndex(requestID string) int {
	for i, req := range u.Mailbox {
		if req.ID == requestID {
			return i
		}
	}
	return -1
}
