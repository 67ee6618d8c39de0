// Package workerfuncs holds the named map/filter/reduce handlers shipped
// with the engine. A handler must be registered under the same name in
// every process that might resolve its FuncToken, client and worker
// alike, since the token only ever carries a name and bound arguments
// across the wire, never the function itself.
package workerfuncs

import "github.com/loadshard/parallelogram/internal/ops"

// RegisterBuiltins registers the handlers cmd/worker and cmd/demo both
// rely on being available under the same names.
func RegisterBuiltins(r *ops.Registry) {
	r.RegisterMap("add_constant", func(args ...any) ops.MapFunc {
		delta := toInt(args, 0)
		return func(elt any, _ int) any {
			return toInt([]any{elt}, 0) + delta
		}
	})

	r.RegisterMap("multiply_constant", func(args ...any) ops.MapFunc {
		factor := toInt(args, 0)
		return func(elt any, _ int) any {
			return toInt([]any{elt}, 0) * factor
		}
	})

	r.RegisterFilter("is_even", func(args ...any) ops.FilterFunc {
		return func(elt any, _ int) bool {
			return toInt([]any{elt}, 0)%2 == 0
		}
	})

	r.RegisterFilter("greater_than", func(args ...any) ops.FilterFunc {
		threshold := toInt(args, 0)
		return func(elt any, _ int) bool {
			return toInt([]any{elt}, 0) > threshold
		}
	})

	r.RegisterReduce("sum", func(args ...any) ops.ReduceFunc {
		return func(acc, elt any) any {
			return toInt([]any{acc}, 0) + toInt([]any{elt}, 0)
		}
	})

	r.RegisterReduce("max", func(args ...any) ops.ReduceFunc {
		return func(acc, elt any) any {
			a, b := toInt([]any{acc}, 0), toInt([]any{elt}, 0)
			if a > b {
				return a
			}
			return b
		}
	})
}

// toInt coerces args[idx] to an int, defaulting to 0 when idx is out of
// range or the value is non-numeric; gob round-trips Go ints as int, so this
// covers every value this package's own handlers ever produce or accept.
func toInt(args []any, idx int) int {
	if idx >= len(args) {
		return 0
	}
	switch v := args[idx].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
