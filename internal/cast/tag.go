package cast

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag is the declared value kind of a spreadsheet column.
type Tag string

const (
	Number      Tag = "number"
	Integer     Tag = "integer"
	Boolean     Tag = "boolean"
	String      Tag = "string"
	Point       Tag = "Point"
	Table       Tag = "table"
	Unit        Tag = "Unit"
	UnitKey     Tag = "UnitKey"
	Ability     Tag = "Ability"
	AbilityKey  Tag = "AbilityKey"
	Item        Tag = "Item"
	ItemKey     Tag = "ItemKey"
	Player      Tag = "Player"
	UnitGroup   Tag = "UnitGroup"
	PlayerGroup Tag = "PlayerGroup"
	Mover       Tag = "Mover"
)

type tagInfo struct {
	id    int    // editor type id
	alias string // display alias used in spreadsheet type rows
	ref   bool
}

var tags = map[Tag]tagInfo{
	Number:      {id: 100000, alias: "实数"},
	Boolean:     {id: 100001, alias: "布尔"},
	Integer:     {id: 100002, alias: "整数"},
	String:      {id: 100003, alias: "字符串"},
	Point:       {id: 100004, alias: "点"},
	Unit:        {id: 100006, alias: "单位", ref: true},
	UnitKey:     {id: 100010, alias: "单位类型", ref: true},
	Table:       {id: 100011, alias: "表"},
	Ability:     {id: 100014, alias: "技能", ref: true},
	Player:      {id: 100025, alias: "玩家", ref: true},
	UnitGroup:   {id: 100026, alias: "单位组", ref: true},
	PlayerGroup: {id: 100027, alias: "玩家组", ref: true},
	Item:        {id: 100031, alias: "物品", ref: true},
	ItemKey:     {id: 100032, alias: "物品类型", ref: true},
	AbilityKey:  {id: 100039, alias: "技能类型", ref: true},
	Mover:       {id: 100263, alias: "运动器", ref: true},
}

// Known reports whether t is a supported tag.
func (t Tag) Known() bool {
	_, ok := tags[t]
	return ok
}

// IsReference reports whether t names an opaque reference into another table.
func (t Tag) IsReference() bool { return tags[t].ref }

// ID returns the editor type id of t, or 0 for unknown tags.
func (t Tag) ID() int { return tags[t].id }

// ParseTag resolves a type-row cell to a Tag. The tag name (any case), the
// numeric editor type id and the display alias are all accepted.
func ParseTag(s string) (Tag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty type tag")
	}
	id, idErr := strconv.Atoi(s)
	for t, info := range tags {
		switch {
		case strings.EqualFold(string(t), s):
			return t, nil
		case info.alias == s:
			return t, nil
		case idErr == nil && info.id == id:
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown type tag %q", s)
}
