package domain

import "sort"

// SearchFilter holds at most one substring per searchable field. Absent
// fields leave results unconstrained.
type SearchFilter map[string]string

// Fields returns the filtered field names in sorted order.
func (f SearchFilter) Fields() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
