package models

type Catalog struct {
	ID    string   `json:"id" bson:"_id"`
	Name  string   `json:"name" bson:"name"`
	Cards []string `json:"cards" bson:"cards"`
}
