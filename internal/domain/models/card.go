package models

import "strings"

var Energies = []string{
	"Grass", "Fire", "Water", "Lightning", "Psychic", "Fighting",
	"Darkness", "Metal", "Fairy", "Dragon", "Colorless",
}

var Phases = []string{"Basic", "Stage 1", "Stage 2", "EX"}

var Rarities = []string{"Common", "Uncommon", "Rare", "Ultra Rare"}

func IsEnergy(s string) bool { return contains(Energies, s) }
func IsPhase(s string) bool  { return contains(Phases, s) }
func IsRarity(s string) bool { return contains(Rarities, s) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type Attack struct {
	ID       string   `json:"id" bson:"_id"`
	Name     string   `json:"name" bson:"name"`
	Energies []string `json:"energies" bson:"energies"`
	Damage   int      `json:"damage" bson:"damage"`
	Effect   string   `json:"effect,omitempty" bson:"effect,omitempty"`
}

type Card struct {
	ID            string   `json:"id" bson:"_id"`
	Name          string   `json:"name" bson:"name"`
	NPokeDex      int      `json:"nPokeDex" bson:"nPokeDex"`
	Type          string   `json:"type" bson:"type"`
	Weakness      string   `json:"weakness" bson:"weakness"`
	HP            int      `json:"hp" bson:"hp"`
	Attacks       []string `json:"attacks" bson:"attacks"`
	RetreatCost   []string `json:"retreatCost" bson:"retreatCost"`
	Phase         string   `json:"phase" bson:"phase"`
	Description   string   `json:"description,omitempty" bson:"description,omitempty"`
	IsHolographic bool     `json:"isHolographic" bson:"isHolographic"`
	Value         int      `json:"value" bson:"value"`
	Rarity        string   `json:"rarity" bson:"rarity"`
}

// CardFilter selects cards. All set predicates must hold: Name is a
// case-insensitive substring, the rest are exact. A nil IDs places no
// restriction on ids, a non-nil one limits the result to its members.
type CardFilter struct {
	Name   string
	Type   string
	Value  *int
	Rarity string
	IDs    []string
}

func (f CardFilter) Match(c Card) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.Value != nil && c.Value != *f.Value {
		return false
	}
	if f.Rarity != "" && c.Rarity != f.Rarity {
		return false
	}
	if f.IDs != nil && !contains(f.IDs, c.ID) {
		return false
	}
	return true
}
