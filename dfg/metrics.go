/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package dfg

import (
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/docker/go-units"
)

// CompilesTotal is incremented once per finished Compile call, successful
// or not — single atomic, no mutex, so it costs nothing on the hot path.
var CompilesTotal int64

// BytesEmittedTotal is the running sum of every DfgCodeBlock's total JIT
// footprint (fast+slow+data), across the process lifetime.
var BytesEmittedTotal int64

// compileMetricsSnapshot holds sampled values, atomically swapped by the
// background goroutine. Readers load the pointer atomically.
type compileMetricsSnapshot struct {
	compilesPerSec   float64
	maxInFlight10min int64
	processRSS       int64
}

var currentCompileSnapshot unsafe.Pointer // *compileMetricsSnapshot

// inFlightCompiles counts Compile calls currently executing.
var inFlightCompiles int64

func loadCompileSnapshot() *compileMetricsSnapshot {
	p := atomic.LoadPointer(&currentCompileSnapshot)
	if p == nil {
		return &compileMetricsSnapshot{}
	}
	return (*compileMetricsSnapshot)(p)
}

// beginCompile/endCompile bracket one Compile call for the in-flight gauge.
func beginCompile() {
	atomic.AddInt64(&inFlightCompiles, 1)
}

func endCompile(codeSize int64) {
	atomic.AddInt64(&inFlightCompiles, -1)
	atomic.AddInt64(&CompilesTotal, 1)
	atomic.AddInt64(&BytesEmittedTotal, codeSize)
}

// initCompileMetricsSampler starts a single background goroutine sampling
// compiles/sec and the 10-minute max in-flight gauge, mirroring the
// teacher's single-goroutine atomic-snapshot sampler (no per-request
// locking) but over Compile calls instead of HTTP connections.
func initCompileMetricsSampler() {
	snap := &compileMetricsSnapshot{}
	atomic.StorePointer(&currentCompileSnapshot, unsafe.Pointer(snap))

	go func() {
		var prevCompiles int64

		const rateBuckets = 10
		rateBuf := [rateBuckets]float64{}
		rateIdx := 0

		const inFlightBuckets = 600
		inFlightBuf := [inFlightBuckets]int64{}
		inFlightIdx := 0

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			cur := atomic.LoadInt64(&CompilesTotal)
			delta := cur - prevCompiles
			prevCompiles = cur
			rateBuf[rateIdx%rateBuckets] = float64(delta)
			rateIdx++
			rateCount := rateBuckets
			if rateIdx < rateBuckets {
				rateCount = rateIdx
			}
			rateSum := float64(0)
			for i := 0; i < rateCount; i++ {
				rateSum += rateBuf[i]
			}
			rate := rateSum / float64(rateCount)

			curInFlight := atomic.LoadInt64(&inFlightCompiles)
			inFlightBuf[inFlightIdx%inFlightBuckets] = curInFlight
			inFlightIdx++
			maxInFlight := curInFlight
			maxCount := inFlightBuckets
			if inFlightIdx < inFlightBuckets {
				maxCount = inFlightIdx
			}
			for i := 0; i < maxCount; i++ {
				if inFlightBuf[i] > maxInFlight {
					maxInFlight = inFlightBuf[i]
				}
			}

			newSnap := &compileMetricsSnapshot{
				compilesPerSec:   math.Round(rate*10) / 10,
				maxInFlight10min: maxInFlight,
				processRSS:       readProcessRSS(),
			}
			atomic.StorePointer(&currentCompileSnapshot, unsafe.Pointer(newSnap))
		}
	}()
}

// readProcessRSS reads the RSS of this process from /proc/self/statm, used
// to watch the JIT memory allocator's contribution to resident memory
// (executable pages are never freed, so RSS is monotone within a process).
func readProcessRSS() int64 {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0
	}
	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return pages * int64(os.Getpagesize())
}

// CompilesPerSecond returns the compiles/sec rate averaged over the last
// 10 seconds.
func CompilesPerSecond() float64 { return loadCompileSnapshot().compilesPerSec }

// MaxInFlightCompiles returns the maximum number of concurrently executing
// Compile calls observed over the last 10 minutes.
func MaxInFlightCompiles() int64 { return loadCompileSnapshot().maxInFlight10min }

// ProcessRSS returns the last-sampled resident set size of this process.
func ProcessRSS() int64 { return loadCompileSnapshot().processRSS }

// Report renders a one-line human-readable summary of the process-wide
// JIT metrics, using go-units for the byte counts the same way C7's
// per-compile OpLog.HumanSizes does.
func Report() string {
	return "compiles=" + strconv.FormatInt(atomic.LoadInt64(&CompilesTotal), 10) +
		" rate=" + strconv.FormatFloat(CompilesPerSecond(), 'f', 1, 64) + "/s" +
		" emitted=" + units.HumanSize(float64(atomic.LoadInt64(&BytesEmittedTotal))) +
		" rss=" + units.HumanSize(float64(ProcessRSS()))
}

func init() {
	initCompileMetricsSampler()
}
