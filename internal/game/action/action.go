// Package action turns in-combat action events into initiative scores.
package action

import (
	"github.com/cory-johannsen/action-initiative/internal/game/combat"
	"github.com/cory-johannsen/action-initiative/internal/game/initiative"
)

// Kind is the action type of a use.
type Kind string

const (
	MeleeWeaponAttack  Kind = "mwak"
	RangedWeaponAttack Kind = "rwak"
	MeleeSpellAttack   Kind = "msak"
	RangedSpellAttack  Kind = "rsak"
	SavingThrow        Kind = "save"
	Healing            Kind = "heal"
	Utility            Kind = "util"
	OtherKind          Kind = "other"
)

// IsAttack reports whether k resolves through an attack roll.
func (k Kind) IsAttack() bool {
	switch k {
	case MeleeWeaponAttack, RangedWeaponAttack, MeleeSpellAttack, RangedSpellAttack:
		return true
	}
	return false
}

// IsRangedAttack reports whether k is a ranged weapon or ranged spell attack.
func (k Kind) IsRangedAttack() bool {
	return k == RangedWeaponAttack || k == RangedSpellAttack
}

// ItemType is the kind of item an action comes from.
type ItemType string

const (
	ItemSpell      ItemType = "spell"
	ItemWeapon     ItemType = "weapon"
	ItemFeat       ItemType = "feat"
	ItemConsumable ItemType = "consumable"
	ItemEquipment  ItemType = "equipment"
)

// RangeUnits is the unit of an action's range.
type RangeUnits string

const (
	RangeTouch RangeUnits = "touch"
	RangeMelee RangeUnits = "melee"
	RangeSelf  RangeUnits = "self"
	RangeFeet  RangeUnits = "ft"
	RangeMiles RangeUnits = "mi"
	RangeAny   RangeUnits = "any"
)

// Action is one use of an item or feature by an actor.
type Action struct {
	// ID identifies this specific use; the attack confirmation flag is keyed by it.
	ID       string
	Name     string
	ItemType ItemType
	Kind     Kind
	// DamageParts holds damage formulas, e.g. "2d6+3".
	DamageParts []string
	// Heals marks a pure healing effect.
	Heals       bool
	RangeUnits  RangeUnits
	SaveAbility combat.Ability
}

// HasDamage reports whether the action deals damage.
func (a Action) HasDamage() bool {
	return len(a.DamageParts) > 0
}

// Eligible reports whether a non-attack action can set initiative: it must
// deal damage, be spell-like, or impose a saving throw.
func (a Action) Eligible() bool {
	return a.HasDamage() || a.ItemType == ItemSpell || a.SaveAbility != ""
}

// Category classifies a non-attack action. Pure healing and damage-less
// actions are declared; touch or melee range is melee; anything else is ranged.
func (a Action) Category() initiative.Category {
	switch {
	case a.Heals || !a.HasDamage():
		return initiative.Declared
	case a.RangeUnits == RangeTouch || a.RangeUnits == RangeMelee:
		return initiative.Melee
	default:
		return initiative.Ranged
	}
}

// AttackCategory classifies an attack purely from its range type.
func (a Action) AttackCategory() initiative.Category {
	if a.Kind.IsRangedAttack() {
		return initiative.Ranged
	}
	return initiative.Melee
}
