package cache

var signatureSerializer = NewCanonicalKeySerializer()

// FilterSignature returns a canonical string for a set of query filters.
// Key order, slice order and unset values (nil, "", empty slices) do not
// affect the result, so equal queries always land on the same cache key.
func FilterSignature(params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	return signatureSerializer.SerializeKey("filters", params)
}
