package people

// MergeTags folds additions and removals into the current tag set,
// keeping first-seen order and dropping empties and duplicates.
func MergeTags(current, add, remove []string) []string {
	removed := make(map[string]bool, len(remove))
	for _, tag := range remove {
		removed[tag] = true
	}
	var out []string
	seen := map[string]bool{}
	for _, tag := range append(append([]string{}, current...), add...) {
		if tag == "" || removed[tag] || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
