//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// FatalInGoroutine flags t.Fatal family calls inside goroutines launched by
// a test. Fatal only stops the calling goroutine, so the test keeps running
// and the failure surfaces somewhere unrelated.
func FatalInGoroutine(m dsl.Matcher) {
	m.Match(`go func() { $*_; $t.Fatal($*_); $*_ }()`,
		`go func() { $*_; $t.Fatalf($*_); $*_ }()`,
		`go func() { $*_; $t.FailNow(); $*_ }()`).
		Where(m["t"].Type.Is("*testing.T")).
		Report("t.Fatal in a goroutine does not stop the test, use t.Error and return")
}

// SleepInTest flags bare sleeps used for synchronization in tests. Polling
// with a deadline keeps tests fast when the condition is already true.
func SleepInTest(m dsl.Matcher) {
	m.Match(`time.Sleep($d); $assert`).
		Where(m.File().Name.Matches(`_test\.go$`) && m["d"].Const).
		Report("prefer polling with require.Eventually or a deadline loop over a fixed sleep")
}
