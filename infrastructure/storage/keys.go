package storage

import "strings"

// Ids are opaque and may contain the ':' separator. Each id component is
// escaped so a key prefix of one id can never match another id.
var (
	keyEscaper   = strings.NewReplacer("%", "%25", ":", "%3A")
	keyUnescaper = strings.NewReplacer("%3A", ":", "%25", "%")
)

func escapeID[T ~string](id T) string {
	return keyEscaper.Replace(string(id))
}

func unescapeID[T ~string](component string) T {
	return T(keyUnescaper.Replace(component))
}
