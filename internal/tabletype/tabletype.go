// Package tabletype defines the closed set of editor table categories and
// their folder and label mappings.
package tabletype

import (
	"fmt"
	"strings"
)

// Type is one of the editor table categories a record belongs to.
type Type string

const (
	Unit         Type = "unit"
	Decoration   Type = "decoration"
	Item         Type = "item"
	Ability      Type = "ability"
	Modifier     Type = "modifier"
	Projectile   Type = "projectile"
	Technology   Type = "technology"
	Destructible Type = "destructible"
	Sound        Type = "sound"
)

// All lists every type in display order.
var All = []Type{Unit, Decoration, Item, Ability, Modifier, Projectile, Technology, Destructible, Sound}

type info struct {
	folder string // canonical storage folder under the record store root
	label  string // display label, also the CSV source folder name
}

var infos = map[Type]info{
	Unit:         {folder: "editorunit", label: "单位"},
	Decoration:   {folder: "editordecoration", label: "装饰物"},
	Item:         {folder: "editoritem", label: "物品"},
	Ability:      {folder: "abilityall", label: "技能"},
	Modifier:     {folder: "modifierall", label: "魔法效果"},
	Projectile:   {folder: "projectileall", label: "投射物"},
	Technology:   {folder: "technologyall", label: "科技"},
	Destructible: {folder: "editordestructible", label: "可破坏物"},
	Sound:        {folder: "soundall", label: "声音"},
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	_, ok := infos[t]
	return ok
}

// Folder returns the canonical storage folder name of t.
func (t Type) Folder() string { return infos[t].folder }

// Label returns the display label of t.
func (t Type) Label() string { return infos[t].label }

// CSVFolder returns the folder name holding t's CSV sources.
func (t Type) CSVFolder() string { return infos[t].label }

func (t Type) String() string { return string(t) }

// Parse resolves an English name or display label to a Type.
func Parse(s string) (Type, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, t := range All {
		if string(t) == lower || infos[t].label == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown editor table type %q", s)
}

// FromFolder resolves a canonical storage folder name to a Type.
func FromFolder(folder string) (Type, bool) {
	for _, t := range All {
		if strings.EqualFold(infos[t].folder, folder) {
			return t, true
		}
	}
	return "", false
}
