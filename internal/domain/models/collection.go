package models

// OwnedCard is one entry of a user's collection.
type OwnedCard struct {
	CardID   string `json:"card" bson:"card"`
	Quantity int    `json:"quantity" bson:"quantity"`
}

// Collection maps card ids to the number of copies a user holds, ordered
// by first acquisition. Card ids are unique and quantities are always positive.
type Collection []OwnedCard

func (c Collection) Quantity(cardID string) int {
	for _, oc := range c {
		if oc.CardID == cardID {
			return oc.Quantity
		}
	}
	return 0
}

func (c *Collection) Add(cardID string) {
	for i := range *c {
		if (*c)[i].CardID == cardID {
			(*c)[i].Quantity++
			return
		}
	}
	*c = append(*c, OwnedCard{CardID: cardID, Quantity: 1})
}

// Remove takes one copy of the card out of the collection. It reports false
// if the card is not held.
func (c *Collection) Remove(cardID string) bool {
	for i := range *c {
		if (*c)[i].CardID != cardID {
			continue
		}
		(*c)[i].Quantity--
		if (*c)[i].Quantity <= 0 {
			*c = append((*c)[:i], (*c)[i+1:]...)
		}
		return true
	}
	return false
}

// Purge drops every copy of the card.
func (c *Collection) Purge(cardID string) {
	for i := range *c {
		if (*c)[i].CardID == cardID {
			*c = append((*c)[:i], (*c)[i+1:]...)
			return
		}
	}
}

// Exchange moves one copy of fromCard from a to b and one copy of toCard
// from b to a. Nothing changes unless both sides hold their card.
func Exchange(a *Collection, fromCard string, b *Collection, toCard string) bool {
	if a == b {
		return a.Quantity(fromCard) > 0 && a.Quantity(toCard) > 0
	}
	if a.Quantity(fromCard) == 0 || b.Quantity(toCard) == 0 {
		return false
	}
	a.Remove(fromCard)
	b.Remove(toCard)
	b.Add(fromCard)
	a.Add(toCard)
	return true
}
