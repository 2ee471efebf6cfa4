package metadata

import (
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/jinzhu/inflection"
)

// ColumnName derives the default column for a Go field name:
// CustomerID becomes customer_id, Line2 becomes line_2.
func ColumnName(field string) string {
	return strcase.ToSnake(field)
}

// TableName derives the default table for a class name the way bun names
// model tables: snake_case, then pluralized. OrderLine becomes
// order_lines. Package qualifiers and pointer markers from reflected names
// are dropped.
func TableName(class string) string {
	return inflection.Plural(baseName(class))
}

// JoinTableName derives the link table of an owning collection.
func JoinTableName(owner, assoc string) string {
	return baseName(owner) + "_" + strcase.ToSnake(assoc)
}

// ForeignKeyName derives the foreign key column referencing a class.
func ForeignKeyName(target string) string {
	return baseName(target) + "_id"
}

func baseName(class string) string {
	if i := strings.LastIndexByte(class, '.'); i >= 0 {
		class = class[i+1:]
	}
	return strcase.ToSnake(strings.TrimLeft(class, "*"))
}
