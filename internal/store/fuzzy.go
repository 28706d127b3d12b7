package store

import (
	"database/sql/driver"

	sqlite "modernc.org/sqlite"

	"tracecap/pkg/schema"
)

// sqliteRegisterFuzzyMatch registers fuzzyMatch(column, target, code)
// as a deterministic scalar SQL function on every connection opened by
// db's driver, implementing spec §4.3's tolerant-equality predicate on
// top of schema.FuzzyMatch. code follows schema.FuzzyConstraint's
// integer values (0=equal, 1=<=, 2=>=).
func sqliteRegisterFuzzyMatch(db interface{ Driver() driver.Driver }) error {
	return sqlite.RegisterDeterministicScalarFunction("fuzzyMatch", 3,
		func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			value, ok1 := toFloat(args[0])
			target, ok2 := toFloat(args[1])
			code, ok3 := toInt(args[2])
			if !ok1 || !ok2 || !ok3 {
				return int64(0), nil
			}
			if schema.FuzzyMatch(value, target, schema.FuzzyConstraint(code)) {
				return int64(1), nil
			}
			return int64(0), nil
		})
}

func toFloat(v driver.Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v driver.Value) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
