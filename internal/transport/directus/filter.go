package directus

// Filter helpers produce the Directus filter JSON shape
// (https://docs.directus.io/reference/filter-rules.html subset in use).

// Or combines conditions so any may match.
func Or(conds ...map[string]any) map[string]any {
	return map[string]any{"_or": conds}
}

// IContains matches when field contains value, case-insensitively.
func IContains(field, value string) map[string]any {
	return map[string]any{field: map[string]any{"_icontains": value}}
}

// Eq matches when field equals value.
func Eq(field string, value any) map[string]any {
	return map[string]any{field: map[string]any{"_eq": value}}
}

// NotNull matches when field is set.
func NotNull(field string) map[string]any {
	return map[string]any{field: map[string]any{"_nnull": true}}
}

// And merges conditions into a single filter object; later keys win on
// collision, matching how the upstream route spreads extra filters.
func And(conds ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, c := range conds {
		for k, v := range c {
			merged[k] = v
		}
	}
	return merged
}
