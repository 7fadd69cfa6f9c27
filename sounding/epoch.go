package sounding

import (
	"math/big"
	"time"
)

// Epoch-scale seconds combined with sub-millisecond chirp timing do not fit a
// float64, so time conversions go through exact rationals and end up in a
// time.Time (integer seconds plus nanoseconds).

var nanosPerSecond = big.NewInt(int64(time.Second))

// Rat returns f as an exact rational.
func Rat(f float64) *big.Rat {
	return new(big.Rat).SetFloat64(f)
}

// TimeRat returns t as exact rational Unix seconds.
func TimeRat(t time.Time) *big.Rat {
	r := new(big.Rat).SetFrac(big.NewInt(int64(t.Nanosecond())), nanosPerSecond)
	return r.Add(r, new(big.Rat).SetInt64(t.Unix()))
}

// RatTime converts rational Unix seconds to a time.Time, truncating towards
// negative infinity at nanosecond resolution.
func RatTime(r *big.Rat) time.Time {
	ns := Floor(new(big.Rat).Mul(r, new(big.Rat).SetInt(nanosPerSecond)))
	sec, nsec := new(big.Int).DivMod(ns, nanosPerSecond, new(big.Int))
	return time.Unix(sec.Int64(), nsec.Int64()).UTC()
}

// Floor returns the largest integer not greater than r.
func Floor(r *big.Rat) *big.Int {
	// Int.Div is Euclidean, which floors for a positive denominator.
	return new(big.Int).Div(r.Num(), r.Denom())
}

// IndexTime returns the time of absolute sample index idx.
func IndexTime(idx int64, sampleRate float64) time.Time {
	r := new(big.Rat).SetInt64(idx)
	return RatTime(r.Quo(r, Rat(sampleRate)))
}

// TimeIndex returns floor(t * sampleRate).
func TimeIndex(t time.Time, sampleRate float64) int64 {
	r := TimeRat(t)
	return Floor(r.Mul(r, Rat(sampleRate))).Int64()
}

// SecondsTime converts float Unix seconds as found in parameter files.
func SecondsTime(s float64) time.Time {
	return RatTime(Rat(s))
}

// Seconds returns t as float Unix seconds.
func Seconds(t time.Time) float64 {
	f, _ := TimeRat(t).Float64()
	return f
}
