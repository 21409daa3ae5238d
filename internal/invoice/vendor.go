package invoice

// VendorIDs returns the distinct vendor ids referenced by records, in the
// order they first appear
func VendorIDs(records []Record) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, r := range records {
		if !r.HasVendor() {
			continue
		}
		id := r.Vendor()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// ResolveVendors returns a copy of records with VendorName filled from names.
// Records without a vendor or without a mapping get UnknownVendor.
func ResolveVendors(records []Record, names map[string]string) []Record {
	resolved := make([]Record, len(records))
	for i, r := range records {
		r.VendorName = UnknownVendor
		if r.HasVendor() {
			if name, ok := names[r.Vendor()]; ok && name != "" {
				r.VendorName = name
			}
		}
		resolved[i] = r
	}
	return resolved
}
