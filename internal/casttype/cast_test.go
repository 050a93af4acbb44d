package casttype

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pgcompare/internal/config"
)

func TestClassifyFamilies(t *testing.T) {
	assert.Equal(t, FamilyBoolean, Classify("boolean"))
	assert.Equal(t, FamilyNumeric, Classify("NUMERIC(10,2)"))
	assert.Equal(t, FamilyTimestamp, Classify("TIMESTAMP(6) WITH TIME ZONE"))
	assert.Equal(t, FamilyString, Classify("varchar2"))
	assert.Equal(t, FamilyBinary, Classify("bytea"))
	assert.Equal(t, FamilyUnsupported, Classify("uniqueidentifier"))
}

func TestCompileUnsupportedColumn(t *testing.T) {
	_, _, ok := Compile("postgres", Column{Expr: `"t"."id"`, DataType: "uniqueidentifier"}, config.HashNormalized, config.CastStandard, config.CastStandard)
	assert.False(t, ok)
}

func TestCompileRawModeIgnoresFamily(t *testing.T) {
	expr, family, ok := Compile("mysql", Column{Expr: "`amount`", DataType: "decimal(10,2)"}, config.HashRaw, config.CastStandard, config.CastStandard)
	assert.True(t, ok)
	assert.Equal(t, FamilyNumeric, family)
	assert.Equal(t, "COALESCE(CAST(`amount` AS CHAR), '')", expr)
}

func TestCompileBooleanByDialect(t *testing.T) {
	pg, _, _ := Compile("postgres", Column{Expr: `"active"`, DataType: "boolean"}, config.HashNormalized, config.CastStandard, config.CastStandard)
	assert.Equal(t, `CASE WHEN "active" IS NULL THEN '' WHEN "active" THEN 'true' ELSE 'false' END`, pg)

	ms, _, _ := Compile("mssql", Column{Expr: "[active]", DataType: "boolean"}, config.HashNormalized, config.CastStandard, config.CastStandard)
	assert.Equal(t, `CASE WHEN [active] IS NULL THEN '' WHEN [active] <> 0 THEN 'true' ELSE 'false' END`, ms)
}

func TestCompileIntegerNumeric(t *testing.T) {
	col := Column{Expr: `"qty"`, DataType: "numeric(10,0)", Precision: 10, Scale: 0}

	pg, family, ok := Compile("postgres", col, config.HashNormalized, config.CastStandard, config.CastStandard)
	assert.True(t, ok)
	assert.Equal(t, FamilyNumeric, family)
	assert.Equal(t, `COALESCE(CAST(CAST("qty" AS BIGINT) AS TEXT), '')`, pg)

	ora, _, _ := Compile("oracle", Column{Expr: `"QTY"`, DataType: "number(10,0)", Precision: 10, Scale: 0}, config.HashNormalized, config.CastStandard, config.CastStandard)
	assert.Equal(t, `COALESCE(TO_CHAR("QTY", 'FM999999999999999999'), '')`, ora)
}

func TestCompileDecimalTrimsTrailingZeros(t *testing.T) {
	col := Column{Expr: `"amount"`, DataType: "numeric(12,4)", Precision: 12, Scale: 4}
	expr, _, ok := Compile("postgres", col, config.HashNormalized, config.CastStandard, config.CastStandard)
	assert.True(t, ok)
	assert.Equal(t, `COALESCE(CASE WHEN CAST("amount" AS TEXT) LIKE '%.%' THEN RTRIM(RTRIM(CAST("amount" AS TEXT), '0'), '.') ELSE CAST("amount" AS TEXT) END, '')`, expr)
}

func TestCompileDecimalNotationModeAddsMagnitudeBranch(t *testing.T) {
	col := Column{Expr: `"amount"`, DataType: "numeric(30,4)", Precision: 30, Scale: 4}
	expr, _, ok := Compile("oracle", col, config.HashNormalized, config.CastStandard, config.CastNotation)
	assert.True(t, ok)
	assert.Contains(t, expr, "CASE WHEN ABS(\"amount\") >= 1e+15")
	assert.Contains(t, expr, "9.99999999999999EEEE")
}

func TestCompileFloatFamilyUsesFloatCastOverNumberCast(t *testing.T) {
	col := Column{Expr: `"score"`, DataType: "double precision", Precision: 0, Scale: 0}
	expr, _, ok := Compile("postgres", col, config.HashNormalized, config.CastNotation, config.CastStandard)
	assert.True(t, ok)
	assert.Contains(t, expr, "CASE WHEN ABS(\"score\") >=", "float-cast=notation should govern float columns even when number-cast=standard")
}

func TestCompileTimestampWithZone(t *testing.T) {
	col := Column{Expr: `"created_at"`, DataType: "timestamptz", Scale: 0}
	expr, family, ok := Compile("postgres", col, config.HashNormalized, config.CastStandard, config.CastStandard)
	assert.True(t, ok)
	assert.Equal(t, FamilyTimestamp, family)
	assert.Contains(t, expr, "OF:00")
}

func TestCompileTimestampNoZone(t *testing.T) {
	col := Column{Expr: "[created_at]", DataType: "datetime2", Scale: 0}
	expr, _, ok := Compile("mssql", col, config.HashNormalized, config.CastStandard, config.CastStandard)
	assert.True(t, ok)
	assert.Equal(t, `COALESCE(CONVERT(VARCHAR(40), [created_at], 126), '')`, expr)
}

func TestCompileBinary(t *testing.T) {
	expr, family, ok := Compile("mysql", Column{Expr: "`blob_col`", DataType: "blob"}, config.HashNormalized, config.CastStandard, config.CastStandard)
	assert.True(t, ok)
	assert.Equal(t, FamilyBinary, family)
	assert.Equal(t, "COALESCE(LOWER(HEX(`blob_col`)), '')", expr)
}

func TestCompileStringDefault(t *testing.T) {
	expr, family, ok := Compile("db2", Column{Expr: `"NAME"`, DataType: "varchar(100)"}, config.HashNormalized, config.CastStandard, config.CastStandard)
	assert.True(t, ok)
	assert.Equal(t, FamilyString, family)
	assert.Equal(t, `COALESCE(CAST("NAME" AS CHAR), '')`, expr)
}
