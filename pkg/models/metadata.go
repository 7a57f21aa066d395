package models

// Column describes one column returned by schema introspection.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Table is a table and its columns.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Schema groups the tables of one schema (or MySQL database, or MaxCompute project).
type Schema struct {
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

// SchemaInfo is the get_schema_info payload for one instance.
type SchemaInfo struct {
	Instance string       `json:"platform"`
	Kind     PlatformKind `json:"kind"`
	Schemas  []Schema     `json:"schemas"`
}

// ColumnRow is a flat introspection row as read from information_schema.
type ColumnRow struct {
	Schema   string
	Table    string
	Column   string
	Type     string
	Nullable bool
}

// GroupColumns folds flat rows, already ordered by schema, table and
// ordinal position, into the nested schema shape.
func GroupColumns(rows []ColumnRow) []Schema {
	var schemas []Schema
	for _, r := range rows {
		if len(schemas) == 0 || schemas[len(schemas)-1].Name != r.Schema {
			schemas = append(schemas, Schema{Name: r.Schema})
		}
		s := &schemas[len(schemas)-1]
		if len(s.Tables) == 0 || s.Tables[len(s.Tables)-1].Name != r.Table {
			s.Tables = append(s.Tables, Table{Name: r.Table})
		}
		t := &s.Tables[len(s.Tables)-1]
		t.Columns = append(t.Columns, Column{Name: r.Column, Type: r.Type, Nullable: r.Nullable})
	}
	return schemas
}
