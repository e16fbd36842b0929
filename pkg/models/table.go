package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// DataType is the semantic type a rule targets and a column is reduced to.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumeric DataType = "numeric"
	DataTypeOther   DataType = "other"
)

// ParseDataType accepts the rule-pack spelling of a semantic type.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text":
		return DataTypeString, nil
	case "numeric", "number":
		return DataTypeNumeric, nil
	default:
		return "", fmt.Errorf("unsupported rule type %q (want string or numeric)", s)
	}
}

// SemanticTypeOf maps a declared SQL type (PostgreSQL, SQL Server or ANSI spelling) to a DataType.
// Length and precision modifiers are ignored: "varchar(255)" and "numeric(10,2)" resolve normally.
func SemanticTypeOf(declared string) DataType {
	t := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}

	switch t {
	case "text", "varchar", "character varying", "char", "character", "bpchar", "citext", "name",
		"nvarchar", "nchar", "ntext", "string":
		return DataTypeString
	case "smallint", "integer", "int", "bigint", "int2", "int4", "int8", "tinyint",
		"decimal", "numeric", "real", "double precision", "float", "float4", "float8",
		"money", "smallmoney", "double", "long", "short", "byte":
		return DataTypeNumeric
	default:
		return DataTypeOther
	}
}

// TableRef identifies a table across catalogs.
type TableRef struct {
	Catalog  string `json:"catalog"`
	Database string `json:"database"`
	Table    string `json:"table"`
}

func (r TableRef) String() string {
	return r.Catalog + "." + r.Database + "." + r.Table
}

// ColumnRef identifies a column across catalogs.
type ColumnRef struct {
	Catalog  string `json:"catalog"`
	Database string `json:"database"`
	Table    string `json:"table"`
	Column   string `json:"column"`
}

// TableRef returns the identity of the column's table.
func (r ColumnRef) TableRef() TableRef {
	return TableRef{Catalog: r.Catalog, Database: r.Database, Table: r.Table}
}

func (r ColumnRef) String() string {
	return r.TableRef().String() + "." + r.Column
}

// ColumnInfo is a read-only snapshot of one column taken from the catalog at scan time.
type ColumnInfo struct {
	Catalog         string   `json:"catalog"`
	Database        string   `json:"database"`
	Table           string   `json:"table"`
	Name            string   `json:"name"`
	DataType        string   `json:"data_type"`
	OrdinalPosition int      `json:"ordinal_position"`
	IsNullable      bool     `json:"is_nullable"`
	Tags            []string `json:"tags,omitempty"`
}

// SemanticType reduces the declared type to the DataType rules target.
func (c ColumnInfo) SemanticType() DataType {
	return SemanticTypeOf(c.DataType)
}

// Ref returns the column identity.
func (c ColumnInfo) Ref() ColumnRef {
	return ColumnRef{Catalog: c.Catalog, Database: c.Database, Table: c.Table, Column: c.Name}
}

// TableInfo is a table to scan together with its columns in ordinal order.
type TableInfo struct {
	Catalog  string       `json:"catalog"`
	Database string       `json:"database"`
	Table    string       `json:"table"`
	Columns  []ColumnInfo `json:"columns"`
	Tags     []string     `json:"tags,omitempty"`
}

// Ref returns the table identity.
func (t TableInfo) Ref() TableRef {
	return TableRef{Catalog: t.Catalog, Database: t.Database, Table: t.Table}
}

// ValueText renders a scalar the way the SQL dialects cast it to text before regex matching.
func ValueText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case driver.Valuer:
		inner, err := v.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if _, again := inner.(driver.Valuer); again {
			return fmt.Sprint(inner)
		}
		return ValueText(inner)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// ValueFloat converts a numeric scalar to float64. The boolean is false for non-numeric values.
func ValueFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return f, err == nil
	case driver.Valuer:
		inner, err := v.Value()
		if err != nil || inner == nil {
			return 0, false
		}
		if _, again := inner.(driver.Valuer); again {
			return 0, false
		}
		return ValueFloat(inner)
	default:
		f, err := strconv.ParseFloat(fmt.Sprint(v), 64)
		return f, err == nil
	}
}
