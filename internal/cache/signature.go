package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Kind string

const (
	KindSearch  Kind = "search"
	KindTweet   Kind = "tweet"
	KindThread  Kind = "thread"
	KindProfile Kind = "profile"
)

// Signature identifies a query by its literal parameters. Two signatures
// share a cache entry only if every field matches exactly; "a b" and "b a"
// are different queries here.
type Signature struct {
	Kind  Kind
	Query string
	Sort  string
	Since string
	Pages int
	Aux   map[string]string
}

// String renders the signature with quoted fields and aux keys in sorted order.
func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	for _, f := range []string{s.Query, s.Sort, s.Since, strconv.Itoa(s.Pages)} {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(f))
	}
	keys := make([]string, 0, len(s.Aux))
	for k := range s.Aux {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(s.Aux[k]))
	}
	return b.String()
}

// Key is the storage key for the signature.
func (s Signature) Key() string {
	h := sha256.Sum256([]byte(s.String()))
	return fmt.Sprintf("%x", h[:16])
}
