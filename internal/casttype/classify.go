// Package casttype implements C2: classifying a column's declared type
// name into one of the canonical families spec §4.2 defines, and
// compiling a dialect-specific SQL expression that renders any value of
// that family into the same canonical text on every engine.
package casttype

import "pgcompare/internal/model"

// Family is one of the six type-name classification sets spec §4.2 fixes.
type Family string

const (
	FamilyBoolean     Family = "BOOLEAN"
	FamilyString      Family = "STRING"
	FamilyNumeric     Family = "NUMERIC"
	FamilyTimestamp   Family = "TIMESTAMP"
	FamilyBinary      Family = "BINARY"
	FamilyUnsupported Family = "UNSUPPORTED"
)

// DataClass collapses a Family into the three-way split RowFingerprint
// hashing actually cares about: TIMESTAMP, STRING and BINARY all become
// char once canonicalized to text.
func (f Family) DataClass() model.DataClass {
	switch f {
	case FamilyBoolean:
		return model.ClassBoolean
	case FamilyNumeric:
		return model.ClassNumeric
	default:
		return model.ClassChar
	}
}

var familyByTypeName = buildFamilyTable()

func buildFamilyTable() map[string]Family {
	m := map[string]Family{}
	add := func(f Family, names ...string) {
		for _, n := range names {
			m[n] = f
		}
	}
	add(FamilyBoolean, "bool", "boolean")
	add(FamilyString, "bpchar", "char", "character", "clob", "enum", "json", "jsonb",
		"nchar", "nclob", "ntext", "nvarchar", "nvarchar2", "text", "varchar", "varchar2", "xml")
	add(FamilyNumeric, "bigint", "bigserial", "binary_double", "binary_float", "dec",
		"decimal", "double", "double precision", "fixed", "float", "float4", "float8",
		"int", "integer", "int2", "int4", "int8", "money", "number", "numeric", "real",
		"serial", "smallint", "smallmoney", "smallserial", "tinyint")
	add(FamilyTimestamp, "date", "datetime", "datetimeoffset", "datetime2",
		"smalldatetime", "time", "timestamp", "timestamptz", "year")
	add(FamilyBinary, "bytea", "binary", "blob", "raw", "varbinary")
	add(FamilyUnsupported, "bfile", "bit", "cursor", "hierarchyid", "image", "rowid",
		"rowversion", "set", "sql_variant", "uniqueidentifier", "long", "long raw")
	return m
}

// Classify maps a lowercased, parameter-stripped type name to its Family.
// Timestamp types carrying precision or a zone suffix (e.g.
// "timestamp(6) with time zone") are reduced to their base name by
// normalizeTypeName before the lookup.
func Classify(dataType string) Family {
	name := normalizeTypeName(dataType)
	if f, ok := familyByTypeName[name]; ok {
		return f
	}
	if isParenthesizedTimestamp(name) {
		return FamilyTimestamp
	}
	return FamilyUnsupported
}
