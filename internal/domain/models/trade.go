package models

import (
	"fmt"
	"time"
)

// TradeRequest is a pending offer sitting in the target user's mailbox.
type TradeRequest struct {
	ID              string    `json:"id" bson:"_id"`
	RequesterUserID string    `json:"requesterUserId" bson:"requesterUserId"`
	RequesterCardID string    `json:"requesterCardId" bson:"requesterCardId"`
	TargetUserID    string    `json:"targetUserId" bson:"targetUserId"`
	TargetCardID    string    `json:"targetCardId" bson:"targetCardId"`
	Message         string    `json:"message" bson:"message"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
}

func (r TradeRequest) DefaultMessage() string {
	return fmt.Sprintf("User %s wants to trade their card %s for your card %s",
		r.RequesterUserID, r.RequesterCardID, r.TargetCardID)
}
