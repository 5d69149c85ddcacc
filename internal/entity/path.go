package entity

import "path"

// FragmentExt is the file extension of fragment files in the database tree.
const FragmentExt = ".yaml"

// WorldClassname is the classname of the world root entity.
const WorldClassname = "worldspawn"

// StoragePath returns the slash-separated location of e's fragment file,
// relative to the database root.
func StoragePath(e *Entity) string {
	if e.Kind == KindWorld || e.Classname == WorldClassname {
		return WorldClassname + FragmentExt
	}
	var folder string
	switch e.Kind {
	case KindBase:
		folder = "bases"
	case KindBrush:
		folder = "brush"
	default:
		folder = "point"
	}
	return path.Join(folder, e.Classname+FragmentExt)
}
