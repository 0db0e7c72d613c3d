package selector

// intersectUint8 returns the values present in both a and b, preserving a's
// order. Used for the small capability sets (channels, preamble indexes,
// config ids) exchanged during UWB negotiation (spec section 4.6).
func intersectUint8[T ~uint8](a, b []T) []T {
	set := make(map[T]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []T
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func containsUint8[T ~uint8](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func maxUint16(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}
