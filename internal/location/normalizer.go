package location

// Normalizer maps one page of raw provider items to records.
// Implementations must be pure: no I/O and no state kept between calls.
type Normalizer interface {
	Normalize(items []RawItem, onlyWithLocation bool) ([]Record, error)
}

// NormalizerFunc adapts a page-level function to Normalizer.
type NormalizerFunc func(items []RawItem, onlyWithLocation bool) ([]Record, error)

// Normalize calls f.
func (f NormalizerFunc) Normalize(items []RawItem, onlyWithLocation bool) ([]Record, error) {
	return f(items, onlyWithLocation)
}

// ItemFunc is a custom per-item normalizer. It fully replaces the provider default:
// it sees every raw item, one at a time, and the location filter is not applied.
type ItemFunc func(item RawItem) (Record, error)

// Normalize maps every item through f, preserving order.
func (f ItemFunc) Normalize(items []RawItem, _ bool) ([]Record, error) {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := f(item)
		if err != nil {
			return nil, err
		}
		if rec.TaggedUsers == nil {
			rec.TaggedUsers = []TaggedUser{}
		}
		records = append(records, rec)
	}
	return records, nil
}
