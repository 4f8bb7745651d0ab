package models

import "time"

const (
	TransactionTrade  = "trade"
	TransactionDirect = "direct"
)

// Transaction records one executed card swap: FromCardID left FromUserID
// for ToUserID and ToCardID went the other way.
type Transaction struct {
	ID         string    `json:"id" bson:"_id"`
	Kind       string    `json:"kind" bson:"kind"`
	FromUserID string    `json:"fromUserId" bson:"fromUserId"`
	FromCardID string    `json:"fromCardId" bson:"fromCardId"`
	ToUserID   string    `json:"toUserId" bson:"toUserId"`
	ToCardID   string    `json:"toCardId" bson:"toCardId"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}
