package scheduler

import "fmt"

// Batch is a half-open index range [Start, End) of submitted operations.
type Batch struct {
	Start int
	End   int
}

// Size returns the number of operations in the batch.
func (b Batch) Size() int {
	return b.End - b.Start
}

// SplitBatches partitions total operations into consecutive batches of at
// most size operations.
func SplitBatches(total, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if total < 0 {
		return nil, fmt.Errorf("total must be >= 0")
	}

	batches := make([]Batch, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		batches = append(batches, Batch{Start: start, End: end})
	}
	return batches, nil
}
