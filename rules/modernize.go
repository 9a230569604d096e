//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// MinMaxBuiltin flags hand-rolled min/max that the builtins cover since
// Go 1.21.
func MinMaxBuiltin(m dsl.Matcher) {
	m.Match(`if $a < $b { $x = $a } else { $x = $b }`).
		Report("use $x = min($a, $b)").
		Suggest("$x = min($a, $b)")

	m.Match(`if $a > $b { $x = $a } else { $x = $b }`).
		Report("use $x = max($a, $b)").
		Suggest("$x = max($a, $b)")

	m.Match(`int(math.Min(float64($a), float64($b)))`).
		Report("use min($a, $b), no float conversion needed").
		Suggest("min($a, $b)")

	m.Match(`int(math.Max(float64($a), float64($b)))`).
		Report("use max($a, $b), no float conversion needed").
		Suggest("max($a, $b)")
}

// InterfaceAny flags the spelled-out empty interface.
func InterfaceAny(m dsl.Matcher) {
	m.Match(`interface{}`).
		Report("use any instead of interface{}").
		Suggest("any")
}

// SprintfConcat flags fmt.Sprintf used for plain two-string concatenation.
func SprintfConcat(m dsl.Matcher) {
	m.Match(`fmt.Sprintf("%s%s", $a, $b)`).
		Where(m["a"].Type.Is("string") && m["b"].Type.Is("string")).
		Report("use $a + $b").
		Suggest("$a + $b")
}
