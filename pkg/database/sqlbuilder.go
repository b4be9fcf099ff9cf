package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Now is the server-side timestamp, for columns stamped on write
var Now = sqlbuilder.Raw("NOW()")

// Excluded refers to the value a conflicting insert proposed for column
func Excluded(column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("EXCLUDED.%s", column))
}

// InsertBuilder is a postgres insert builder with upsert support
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

// OnConflict appends an upsert clause. Assignments go on the returned builder.
func (b *InsertBuilder) OnConflict(columns ...string) *UpdateBuilder {
	ub := NewUpdateBuilder()
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE %s", strings.Join(columns, ", "), b.Var(ub)))
	return ub
}

// OnConflictReplace upserts on the conflict columns, overwriting every column in
// replace with the proposed row. touched columns are stamped with Now.
func (b *InsertBuilder) OnConflictReplace(conflict, replace []string, touched ...string) {
	ub := b.OnConflict(conflict...)
	assignments := make([]string, 0, len(replace)+len(touched))
	for _, col := range replace {
		assignments = append(assignments, ub.Assign(col, Excluded(col)))
	}
	for _, col := range touched {
		assignments = append(assignments, ub.Assign(col, Now))
	}
	ub.Set(assignments...)
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{sqlbuilder.PostgreSQL.NewUpdateBuilder()}
}

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}

// CountFrom selects the row count of table
func CountFrom(table string) *SelectBuilder {
	sb := NewSelectBuilder()
	sb.Select("COUNT(*)").From(table)
	return sb
}
