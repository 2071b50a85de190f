// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets time-dependent components take their notion of
// "now" and their tickers as a dependency. Request-handle expiry and
// the capture session's frame pacing both read time through a Clock, so
// their tests can step time explicitly with a FakeClock instead of
// sleeping.
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	session := capture.NewSession(..., fake, ...)
//	fake.WaitForTickers(1)
//	fake.Advance(time.Second / 15)
package clock
