package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// columnMeta is one row of the catalog column listing, in ordinal position order.
type columnMeta struct {
	name       string
	dataType   string
	isNullable string // "YES" or "NO" straight from the catalog
	columnKey  string // "PRI" for primary key members
	extra      string // carries "auto_increment"
}

// schemaHash is a stable content hash over the ordered list of
// (column name, type, nullability) tuples. A changed hash between analyzer
// runs flags structural drift.
func schemaHash(cols []columnMeta) string {
	b := strings.Builder{}
	for _, c := range cols {
		b.WriteString(fmt.Sprintf("%v|%v|%v\n", c.name, c.dataType, c.isNullable))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
