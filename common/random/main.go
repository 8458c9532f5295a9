package random

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	alphanumeric = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
)

// GetUUID returns a v4 UUID with the hyphens removed, the form used for
// request ids and cache keys throughout the gateway.
func GetUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// pick draws one index in [0, n) from crypto/rand. rand.Int only fails when
// the entropy source is broken, which is not recoverable here.
func pick(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}

// fromAlphabet builds a random string of the given length over the alphabet.
func fromAlphabet(alphabet string, length int) string {
	out := make([]byte, length)
	for i := range out {
		out[i] = alphabet[pick(len(alphabet))]
	}
	return string(out)
}

// GenerateKey mints a 48-character credential: 16 random alphanumerics
// followed by a case-mangled UUID. Used for the app key the admin surface
// is protected with.
func GenerateKey() string {
	key := make([]byte, 48)
	copy(key, fromAlphabet(alphanumeric, 16))
	id := GetUUID()
	for i := 0; i < 32; i++ {
		c := id[i]
		if i%2 == 0 && c >= 'a' && c <= 'z' {
			c = c - 'a' + 'A'
		}
		key[i+16] = c
	}
	return string(key)
}

// GetRandomString returns length random characters drawn from digits and
// letters of both cases.
func GetRandomString(length int) string {
	return fromAlphabet(alphanumeric, length)
}

// GetRandomNumberString returns length random decimal digits.
func GetRandomNumberString(length int) string {
	return fromAlphabet(digits, length)
}

// RandRange returns a random int in [min, max).
func RandRange(min, max int) int {
	return min + pick(max-min)
}
