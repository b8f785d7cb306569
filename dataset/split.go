package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// TrainTestSplit shuffles row indices with a seeded source and holds out
// ceil(n*testRatio) rows for testing. The same seed always yields the same
// partition.
func TrainTestSplit(n int, testRatio float64, seed int64) (train, test []int, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %g", testRatio)
	}
	testCount := int(math.Ceil(float64(n) * testRatio))
	if n < 2 || testCount >= n {
		return nil, nil, fmt.Errorf("need at least 2 rows to split, got %d", n)
	}

	rnd := rand.New(rand.NewSource(seed))
	perm := rnd.Perm(n)
	return perm[testCount:], perm[:testCount], nil
}
