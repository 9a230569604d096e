//go:build ruleguard

// Package gorules holds custom ruleguard rules run through golangci-lint.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo flags the manual Add/Done dance that Go 1.25's wg.Go replaces.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of Add/Done (Go 1.25+)").
		Suggest("$wg.Go(func() { $body })")

	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of go func with defer Done (Go 1.25+)")
}

// DeferUnlockMissing flags a lock immediately followed by a return path
// with no deferred unlock in between.
func DeferUnlockMissing(m dsl.Matcher) {
	m.Match(`$mu.Lock(); return $*_`).
		Where(m["mu"].Type.Is("*sync.Mutex") || m["mu"].Type.Is("sync.Mutex")).
		Report("lock taken and never released on this path, defer $mu.Unlock() first")

	m.Match(`$mu.RLock(); return $*_`).
		Where(m["mu"].Type.Is("*sync.RWMutex") || m["mu"].Type.Is("sync.RWMutex")).
		Report("read lock taken and never released on this path, defer $mu.RUnlock() first")
}

// TimeAfterInLoop flags time.After inside for loops, which leaks a timer per
// iteration until it fires. The scan loop and retention sweep use tickers
// for this reason.
func TimeAfterInLoop(m dsl.Matcher) {
	m.Match(`for { select { case <-time.After($d): $*_; $*_ } }`,
		`for $*_ { select { case <-time.After($d): $*_; $*_ } }`).
		Report("time.After in a loop leaks timers, use time.NewTicker or time.NewTimer with Reset")
}
