// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mast

import (
	"bytes"
	"runtime"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ceilDivide returns the quotient of dividend and divisor rounded up.
func ceilDivide(dividend, divisor uint32) uint32 {
	result := dividend / divisor
	if dividend%divisor != 0 {
		result++
	}

	return result
}

// GenerateCombineIndex enumerates every way of choosing a threshold of k out
// of n participants, with participants bundled into groups of g, and returns
// the 1-based participant indices of each choice.
//
// Index generation operates over ceil(n/g) groups with ceil(k/g) groups
// selected, producing every strictly increasing group index sequence in
// lexicographic order.  Each group index j is then expanded back into its
// participant index range [(j-1)*g+1, min(j*g+1, n+1)).
func GenerateCombineIndex(n, k, g uint32) [][]uint32 {
	max := n + 1
	nGroups := ceilDivide(n, g)
	kGroups := ceilDivide(k, g)

	// Working array of the first kGroups naturals plus a sentinel.  Each
	// round emits the first kGroups entries, then advances the leftmost
	// position whose successor is non-adjacent, resetting every position
	// to its left.
	temp := make([]uint32, 0, kGroups+1)
	for i := uint32(1); i <= kGroups; i++ {
		temp = append(temp, i)
	}
	temp = append(temp, nGroups+1)

	var groupCombines [][]uint32
	j := 0
	for j < int(kGroups) {
		combine := make([]uint32, kGroups)
		copy(combine, temp[:kGroups])
		groupCombines = append(groupCombines, combine)

		j = 0
		for j < int(kGroups) && temp[j]+1 == temp[j+1] {
			temp[j] = uint32(j) + 1
			j++
		}
		temp[j]++
	}

	result := make([][]uint32, 0, len(groupCombines))
	for _, groupIdxs := range groupCombines {
		var indexes []uint32
		for _, groupIdx := range groupIdxs {
			start := (groupIdx-1)*g + 1
			end := groupIdx*g + 1
			if end > max {
				end = max
			}
			for idx := start; idx < end; idx++ {
				indexes = append(indexes, idx)
			}
		}
		result = append(result, indexes)
	}

	return result
}

// ComputeCombine returns the binomial coefficient C(n, m), the number of
// combinations GenerateCombineIndex produces for group size 1.
func ComputeCombine(n, m uint32) uint32 {
	if m > n-m {
		m = n - m
	}

	var numerator, denominator uint64 = 1, 1
	for i := n - m + 1; i <= n; i++ {
		numerator *= uint64(i)
	}
	for i := uint32(1); i <= m; i++ {
		denominator *= uint64(i)
	}

	return uint32(numerator / denominator)
}

// ComputeMinThreshold returns the smallest threshold for n participants
// whose combination count does not exceed maxValue.  When no threshold
// satisfies the bound, n itself is returned.
func ComputeMinThreshold(n, maxValue uint32) uint32 {
	if n > maxValue {
		return n
	}
	half := n / 2
	for i := int(n); i >= int(half); i-- {
		if ComputeCombine(n, uint32(i)) > maxValue {
			return uint32(i) + 1
		}
	}

	return 1
}

// combinePubKey pairs the aggregate key of one threshold combination with
// the participant indices that produced it.
type combinePubKey struct {
	pubKey  *btcec.PublicKey
	indexes []uint32
}

// generateCombinePubKeys aggregates every threshold combination of the
// passed participant keys and returns the aggregate keys together with their
// participant indices, sorted by the x coordinate of the aggregate key.
//
// Each combination aggregates independently over the shared sorted key
// slice, so the work is fanned out across a bounded set of workers.  The
// results land in an index-addressed slice and meet again only at the final
// sort, keeping the output identical to a sequential run.
func generateCombinePubKeys(pubKeys []*btcec.PublicKey, k,
	g uint32) ([]*btcec.PublicKey, [][]uint32, error) {

	pubKeys = sortKeys(pubKeys)
	allIndexes := GenerateCombineIndex(uint32(len(pubKeys)), k, g)

	combines := make([]combinePubKey, len(allIndexes))

	numWorkers := runtime.NumCPU()
	if numWorkers > len(allIndexes) {
		numWorkers = len(allIndexes)
	}

	jobs := make(chan int, len(allIndexes))
	for i := range allIndexes {
		jobs <- i
	}
	close(jobs)

	errChan := make(chan error, numWorkers)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := range jobs {
				indexes := allIndexes[i]
				subset := make(
					[]*btcec.PublicKey, len(indexes),
				)
				for j, idx := range indexes {
					subset[j] = pubKeys[idx-1]
				}

				aggKey, err := AggregateKeys(subset)
				if err != nil {
					errChan <- err
					return
				}

				combines[i] = combinePubKey{
					pubKey:  aggKey.FinalKey,
					indexes: indexes,
				}
			}
		}()
	}
	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, nil, err
	}

	// Deterministic leaf ordering.  The sort must be stable so that ties
	// keep their generation order.
	sort.SliceStable(combines, func(i, j int) bool {
		return bytes.Compare(
			xCoor(combines[i].pubKey), xCoor(combines[j].pubKey),
		) < 0
	})

	combinedKeys := make([]*btcec.PublicKey, len(combines))
	combineIndexes := make([][]uint32, len(combines))
	for i, combine := range combines {
		combinedKeys[i] = combine.pubKey
		combineIndexes[i] = combine.indexes
	}

	return combinedKeys, combineIndexes, nil
}
