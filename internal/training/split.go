package training

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	apperrors "github.com/mikey/sms-spam-classifier/internal/errors"
)

const (
	DefaultTestSize = 0.2
	DefaultSeed     = 42
)

// StratifiedSplit partitions row indices into train and test sets so that
// each class keeps its share in both. The same labels, size and seed always
// give the same split. Both outputs are sorted ascending.
func StratifiedSplit(labels []int, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, apperrors.Configuration(fmt.Sprintf("test size must be in (0, 1), got %v", testSize), nil)
	}

	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	if len(byClass) < 2 {
		return nil, nil, apperrors.Configuration(
			fmt.Sprintf("training data has %d class(es), need both spam and ham", len(byClass)), nil)
	}

	classes := make([]int, 0, len(byClass))
	for c, rows := range byClass {
		if len(rows) < 2 {
			return nil, nil, apperrors.Configuration(
				fmt.Sprintf("class %d has %d row(s), need at least 2 for a stratified split", c, len(rows)), nil)
		}
		classes = append(classes, c)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	for _, c := range classes {
		rows := byClass[c]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

		nTest := int(math.Round(float64(len(rows)) * testSize))
		nTest = max(1, min(nTest, len(rows)-1))
		test = append(test, rows[:nTest]...)
		train = append(train, rows[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}
