package database

import (
	"strings"
)

// patchColumn maps one patchable field to its column. value reports the
// bound argument and whether the field was supplied.
type patchColumn[P any] struct {
	column string
	field  string
	grade  bool
	value  func(*P) (any, bool)
}

func optionalArg[T any](o Optional[T]) (any, bool) {
	return o.Value, o.Set
}

var passColumns = []patchColumn[PassPatch]{
	{column: "beauty_title", field: "display_title", value: func(p *PassPatch) (any, bool) { return optionalArg(p.DisplayTitle) }},
	{column: "title", field: "official_title", value: func(p *PassPatch) (any, bool) { return optionalArg(p.OfficialTitle) }},
	{column: "other_titles", field: "alt_titles", value: func(p *PassPatch) (any, bool) { return optionalArg(p.AltTitles) }},
	{column: "connect", field: "connects_description", value: func(p *PassPatch) (any, bool) { return optionalArg(p.ConnectsDescription) }},
	{column: "add_time", field: "submitted_at", value: func(p *PassPatch) (any, bool) {
		if !p.SubmittedAt.Set {
			return nil, false
		}
		return formatTime(p.SubmittedAt.Value), true
	}},
	{column: "level_winter", field: "difficulty.winter", grade: true, value: func(p *PassPatch) (any, bool) { return optionalArg(p.Difficulty.Winter) }},
	{column: "level_summer", field: "difficulty.summer", grade: true, value: func(p *PassPatch) (any, bool) { return optionalArg(p.Difficulty.Summer) }},
	{column: "level_autumn", field: "difficulty.autumn", grade: true, value: func(p *PassPatch) (any, bool) { return optionalArg(p.Difficulty.Autumn) }},
	{column: "level_spring", field: "difficulty.spring", grade: true, value: func(p *PassPatch) (any, bool) { return optionalArg(p.Difficulty.Spring) }},
}

var coordColumns = []patchColumn[CoordinatePatch]{
	{column: "latitude", field: "coordinate.latitude", value: func(c *CoordinatePatch) (any, bool) {
		v, ok := c.Latitude.Get()
		return string(v), ok
	}},
	{column: "longitude", field: "coordinate.longitude", value: func(c *CoordinatePatch) (any, bool) {
		v, ok := c.Longitude.Get()
		return string(v), ok
	}},
	{column: "height", field: "coordinate.elevation", value: func(c *CoordinatePatch) (any, bool) { return optionalArg(c.Elevation) }},
}

// buildUpdate renders "UPDATE table SET a = ?, b = ? WHERE id = ?" for the
// supplied fields only. Column names come from the static tables above;
// every value is a bound argument. ok is false when nothing was supplied.
func buildUpdate[P any](table string, cols []patchColumn[P], patch *P, id int64) (query string, args []any, ok bool) {
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		v, present := col.value(patch)
		if !present {
			continue
		}
		sets = append(sets, col.column+" = ?")
		args = append(args, v)
	}
	if len(sets) == 0 {
		return "", nil, false
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	b.WriteString(" WHERE id = ?")
	args = append(args, id)

	return b.String(), args, true
}
