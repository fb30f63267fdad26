package types

// BuildItemMap converts a slice of items to a map keyed by name.
// Later items win on duplicate names.
func BuildItemMap(items []Item) map[string]Item {
	itemMap := make(map[string]Item, len(items))
	for _, item := range items {
		itemMap[item.Name] = item
	}
	return itemMap
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}
