package casttype

import (
	"fmt"

	"pgcompare/internal/config"
)

// maxIntegerPrecision is the largest declared NUMERIC precision the cast
// compiler will still render as a plain integer text cast; above this, or
// when scale > 0, the fixed-point path is used (spec §4.2).
const maxIntegerPrecision = 18

// extremeMagnitude is the |x| threshold above which number-cast=notation
// forces scientific form to dodge dialect-specific width clipping.
const extremeMagnitude = "1e+15"

// Column is the subset of a ColumnSide the cast compiler needs.
type Column struct {
	Expr      string // already-quoted column reference, e.g. "t"."amount"
	DataType  string
	Precision int
	Scale     int
}

// Compile renders expr's canonical text form for dialect dialectName under
// the given hash method and cast-mode options. ok is false (and expr is
// meaningless) when the column's type falls in FamilyUnsupported — callers
// must exclude it from the column hash and log a warning, per spec §4.2.
func Compile(dialectName string, col Column, method config.HashMethod, floatCast, numberCast config.CastMode) (expr string, family Family, ok bool) {
	family = Classify(col.DataType)
	if family == FamilyUnsupported {
		return "", family, false
	}

	if method == config.HashRaw {
		return rawTextCast(dialectName, col.Expr), family, true
	}

	switch family {
	case FamilyBoolean:
		return booleanCast(dialectName, col.Expr), family, true
	case FamilyNumeric:
		return numericCast(dialectName, col, floatCast, numberCast), family, true
	case FamilyTimestamp:
		return timestampCast(dialectName, col), family, true
	case FamilyBinary:
		return binaryCast(dialectName, col.Expr), family, true
	default: // FamilyString
		return stringCast(dialectName, col.Expr), family, true
	}
}

// rawTextCast is the "safest text cast" mode: no normalization beyond a
// NULL-to-empty-string coalesce.
func rawTextCast(dialectName, expr string) string {
	switch dialectName {
	case "postgres":
		return fmt.Sprintf("COALESCE(CAST(%s AS TEXT), '')", expr)
	case "mysql", "mariadb":
		return fmt.Sprintf("COALESCE(CAST(%s AS CHAR), '')", expr)
	case "mssql":
		return fmt.Sprintf("COALESCE(CAST(%s AS NVARCHAR(MAX)), '')", expr)
	case "oracle":
		return fmt.Sprintf("COALESCE(TO_CHAR(%s), '')", expr)
	case "db2":
		return fmt.Sprintf("COALESCE(CAST(%s AS VARCHAR(32000)), '')", expr)
	default:
		return fmt.Sprintf("COALESCE(CAST(%s AS VARCHAR(4000)), '')", expr)
	}
}

func booleanCast(dialectName, expr string) string {
	switch dialectName {
	case "postgres", "oracle":
		return fmt.Sprintf("CASE WHEN %s IS NULL THEN '' WHEN %s THEN 'true' ELSE 'false' END", expr, expr)
	default: // mysql/mssql/db2 represent boolean-typed columns as 0/1
		return fmt.Sprintf("CASE WHEN %s IS NULL THEN '' WHEN %s <> 0 THEN 'true' ELSE 'false' END", expr, expr)
	}
}

func stringCast(dialectName, expr string) string {
	switch dialectName {
	case "postgres":
		return fmt.Sprintf("COALESCE(%s, '')", expr)
	case "mssql":
		return fmt.Sprintf("COALESCE(CAST(%s AS NVARCHAR(MAX)), '')", expr)
	default:
		return fmt.Sprintf("COALESCE(CAST(%s AS CHAR), '')", expr)
	}
}

func binaryCast(dialectName, expr string) string {
	switch dialectName {
	case "postgres":
		return fmt.Sprintf("COALESCE(LOWER(ENCODE(%s, 'hex')), '')", expr)
	case "mysql", "mariadb":
		return fmt.Sprintf("COALESCE(LOWER(HEX(%s)), '')", expr)
	case "mssql":
		return fmt.Sprintf("COALESCE(LOWER(CONVERT(VARCHAR(MAX), %s, 2)), '')", expr)
	case "oracle":
		return fmt.Sprintf("COALESCE(LOWER(RAWTOHEX(%s)), '')", expr)
	case "db2":
		return fmt.Sprintf("COALESCE(LOWER(HEX(%s)), '')", expr)
	default:
		return fmt.Sprintf("COALESCE(LOWER(HEX(%s)), '')", expr)
	}
}

func numericCast(dialectName string, col Column, floatCast, numberCast config.CastMode) string {
	mode := numberCast
	if isFloatFamily(col.DataType) {
		mode = floatCast
	}

	if col.Scale == 0 && col.Precision > 0 && col.Precision <= maxIntegerPrecision {
		return integerCast(dialectName, col.Expr)
	}
	return decimalCast(dialectName, col.Expr, mode)
}

func isFloatFamily(dataType string) bool {
	switch normalizeTypeName(dataType) {
	case "float", "float4", "float8", "double", "double precision",
		"binary_float", "binary_double", "real":
		return true
	}
	return false
}

func integerCast(dialectName, expr string) string {
	switch dialectName {
	case "postgres":
		return fmt.Sprintf("COALESCE(CAST(CAST(%s AS BIGINT) AS TEXT), '')", expr)
	case "mysql", "mariadb":
		return fmt.Sprintf("COALESCE(CAST(CAST(%s AS SIGNED) AS CHAR), '')", expr)
	case "mssql":
		return fmt.Sprintf("COALESCE(CONVERT(VARCHAR(38), CAST(%s AS BIGINT)), '')", expr)
	case "oracle":
		return fmt.Sprintf("COALESCE(TO_CHAR(%s, 'FM999999999999999999'), '')", expr)
	case "db2":
		return fmt.Sprintf("COALESCE(CAST(CAST(%s AS BIGINT) AS VARCHAR(38)), '')", expr)
	default:
		return fmt.Sprintf("COALESCE(CAST(%s AS VARCHAR(38)), '')", expr)
	}
}

// decimalCast renders a fixed-point value with trailing zeros trimmed, or
// (mode=notation, magnitude >= 1e+15) scientific notation instead. The
// trailing-zero trim is a two-step RTRIM: first of '0', then of a bare
// trailing '.'. It is applied only when the fixed-point text contains a
// decimal point, so an integer-valued rendering such as "100" keeps its
// zeros.
func decimalCast(dialectName, expr string, mode config.CastMode) string {
	fixed := fixedPointText(dialectName, expr)
	trimmed := fmt.Sprintf("CASE WHEN %s LIKE '%%.%%' THEN RTRIM(RTRIM(%s, '0'), '.') ELSE %s END", fixed, fixed, fixed)

	if mode != config.CastNotation {
		return fmt.Sprintf("COALESCE(%s, '')", trimmed)
	}

	scientific := scientificText(dialectName, expr)
	return fmt.Sprintf(
		"COALESCE(CASE WHEN ABS(%s) >= %s THEN %s ELSE %s END, '')",
		expr, extremeMagnitude, scientific, trimmed,
	)
}

func fixedPointText(dialectName, expr string) string {
	switch dialectName {
	case "postgres":
		return fmt.Sprintf("CAST(%s AS TEXT)", expr)
	case "mysql", "mariadb":
		return fmt.Sprintf("CAST(%s AS CHAR)", expr)
	case "mssql":
		return fmt.Sprintf("CONVERT(VARCHAR(64), %s)", expr)
	case "oracle":
		return fmt.Sprintf("TO_CHAR(%s)", expr)
	case "db2":
		return fmt.Sprintf("CAST(%s AS VARCHAR(64))", expr)
	default:
		return fmt.Sprintf("CAST(%s AS VARCHAR(64))", expr)
	}
}

func scientificText(dialectName, expr string) string {
	switch dialectName {
	case "oracle":
		return fmt.Sprintf("TO_CHAR(%s, '9.99999999999999EEEE')", expr)
	case "postgres":
		return fmt.Sprintf("CAST(%s AS TEXT)", expr) // postgres ::text already uses notation past a magnitude threshold for double precision
	default:
		return fmt.Sprintf("CAST(%s AS VARCHAR(64))", expr)
	}
}

// timestampCast renders ISO 8601 text. Postgres and Oracle append a zone
// offset when the declared type carries one, and MSSQL switches to style
// 127 for zoned types; Postgres, MySQL and Oracle add a fractional-seconds
// field when the declared scale is > 0. The fractional part keeps any
// trailing zeros, MySQL output never carries a zone, and the DB2 form has
// neither a fraction nor a zone.
func timestampCast(dialectName string, col Column) string {
	zoned := HasTimeZone(col.DataType)

	switch dialectName {
	case "postgres":
		layout := "YYYY-MM-DD\"T\"HH24:MI:SS"
		if col.Scale > 0 {
			layout += "." + repeat("F", col.Scale)
		}
		if zoned {
			layout += "OF:00"
		}
		return fmt.Sprintf("COALESCE(TO_CHAR(%s, '%s'), '')", col.Expr, layout)
	case "mysql", "mariadb":
		layout := "%Y-%m-%dT%H:%i:%s"
		if col.Scale > 0 {
			layout += ".%f" // DATE_FORMAT only exposes microseconds as %f
		}
		return fmt.Sprintf("COALESCE(DATE_FORMAT(%s, '%s'), '')", col.Expr, layout)
	case "mssql":
		style := "126" // ISO 8601 with fractional seconds, no zone
		if zoned {
			return fmt.Sprintf("COALESCE(CONVERT(VARCHAR(40), %s, 127), '')", col.Expr)
		}
		return fmt.Sprintf("COALESCE(CONVERT(VARCHAR(40), %s, %s), '')", col.Expr, style)
	case "oracle":
		layout := "YYYY-MM-DD\"T\"HH24:MI:SS"
		if col.Scale > 0 {
			layout += "." + repeat("FF", 1)
		}
		if zoned {
			return fmt.Sprintf("COALESCE(TO_CHAR(%s, '%sTZH:TZM'), '')", col.Expr, layout)
		}
		return fmt.Sprintf("COALESCE(TO_CHAR(%s, '%s'), '')", col.Expr, layout)
	case "db2":
		return fmt.Sprintf("COALESCE(TO_CHAR(%s, 'YYYY-MM-DD\"T\"HH24:MI:SS'), '')", col.Expr)
	default:
		return fmt.Sprintf("COALESCE(CAST(%s AS VARCHAR(64)), '')", col.Expr)
	}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
