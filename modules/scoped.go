package modules

import (
	"encoding/hex"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"
)

// NameGenerator produces a scoped class name from the original name, the
// file it lives in and the file's content. Implementations must be pure:
// identical inputs yield identical output regardless of invocation order.
type NameGenerator func(name, filename string, css []byte) string

// ScopedName is the default name generator:
// "_" + name + "_" + first 5 hex chars of the content hash of filename+css.
// Input is NFC-normalized before hashing so differently composed but
// canonically equal sources produce the same names.
func ScopedName(name, filename string, css []byte) string {
	input := make([]byte, 0, len(filename)+len(css))
	input = append(input, filename...)
	input = append(input, css...)
	return "_" + name + "_" + ContentHash(input)[:5]
}

// ContentHash returns the lowercase hex xxh3-128 digest of NFC-normalized
// data.
func ContentHash(data []byte) string {
	sum := xxh3.Hash128(norm.NFC.Bytes(data)).Bytes()
	return hex.EncodeToString(sum[:])
}
