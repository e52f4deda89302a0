package down

// Decode converts a stored value to the requested representation: text to
// binary if wantBinary is set, binary to text otherwise. Other values pass
// through unchanged.
func Decode(raw any, wantBinary bool) any {
	switch v := raw.(type) {
	case string:
		if wantBinary {
			return []byte(v)
		}
		return v
	case []byte:
		if !wantBinary {
			return string(v)
		}
		return v
	default:
		return raw
	}
}

// Bytes returns a stored value in binary form. Empty values come back as the
// canonical empty value.
func Bytes(raw any) []byte {
	if b, ok := Decode(NormalizeRaw(raw), true).([]byte); ok {
		return b
	}
	return []byte{}
}

// Normalize collapses nil and empty values to the canonical empty value.
func Normalize(value []byte) []byte {
	if len(value) == 0 {
		return []byte{}
	}
	return value
}

// NormalizeRaw collapses nil, "" and empty byte slices to the canonical empty value.
func NormalizeRaw(raw any) any {
	switch v := raw.(type) {
	case nil:
		return []byte{}
	case string:
		if v == "" {
			return []byte{}
		}
	case []byte:
		return Normalize(v)
	}
	return raw
}
