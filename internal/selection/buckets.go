package selection

import (
	"sort"
	"strings"
)

// bucketAndPick distributes survivors across the exchange buckets: leading
// "60" codes, leading "00"/"30" codes, and everything else. Each bucket
// yields up to maxResults/3 by score; leftover slots fill from the pooled
// remainder, score-descending. The final list is score-descending.
func bucketAndPick(survivors []analyzed, maxResults int) []analyzed {
	if len(survivors) == 0 || maxResults <= 0 {
		return nil
	}

	var primary, secondary, other []analyzed
	for _, a := range survivors {
		switch {
		case strings.HasPrefix(a.stock.Code, "60"):
			primary = append(primary, a)
		case strings.HasPrefix(a.stock.Code, "00") || strings.HasPrefix(a.stock.Code, "30"):
			secondary = append(secondary, a)
		default:
			other = append(other, a)
		}
	}

	byScore := func(s []analyzed) {
		sort.SliceStable(s, func(i, j int) bool {
			return s[i].stock.CompositeScore > s[j].stock.CompositeScore
		})
	}
	byScore(primary)
	byScore(secondary)
	byScore(other)

	quota := maxResults / 3
	if quota == 0 {
		quota = 1
	}

	var picked, pool []analyzed
	for _, bucket := range [][]analyzed{primary, secondary, other} {
		take := quota
		if take > len(bucket) {
			take = len(bucket)
		}
		picked = append(picked, bucket[:take]...)
		pool = append(pool, bucket[take:]...)
	}

	if len(picked) > maxResults {
		byScore(picked)
		picked = picked[:maxResults]
	} else if len(picked) < maxResults && len(pool) > 0 {
		byScore(pool)
		need := maxResults - len(picked)
		if need > len(pool) {
			need = len(pool)
		}
		picked = append(picked, pool[:need]...)
	}

	byScore(picked)
	return picked
}
