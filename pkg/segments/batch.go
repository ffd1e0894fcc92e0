package segments

import "fmt"

// Outcome summarises a batch.
type Outcome string

const (
	AllSucceeded   Outcome = "all_succeeded"
	PartialSuccess Outcome = "partial_success"
	AllFailed      Outcome = "all_failed"
)

// ItemResult is the outcome for one item of a batch.
type ItemResult struct {
	ID      string `json:"id" yaml:"id"`
	Success bool   `json:"success" yaml:"success"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
	Kind    Kind   `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Count is an item-specific tally, such as contacts moved from one
	// merge source.
	Count int `json:"count,omitempty" yaml:"count,omitempty"`

	// Restored is set when a failed move put the contact back into its
	// source segment.
	Restored bool `json:"restored,omitempty" yaml:"restored,omitempty"`
}

// BatchResult aggregates per-item outcomes. Callers must inspect Outcome or
// Items to detect partial failure; only AllFailed is reported as an error.
type BatchResult struct {
	Outcome   Outcome      `json:"outcome" yaml:"outcome"`
	Items     []ItemResult `json:"items" yaml:"items"`
	Succeeded int          `json:"succeeded" yaml:"succeeded"`
	Failed    int          `json:"failed" yaml:"failed"`
}

func newBatch(n int) *BatchResult {
	return &BatchResult{Items: make([]ItemResult, 0, n)}
}

// record appends the outcome for id and returns a pointer to the new item.
func (b *BatchResult) record(id string, err error) *ItemResult {
	item := ItemResult{ID: id, Success: err == nil}
	if err != nil {
		item.Error = err.Error()
		item.Kind = KindOf(err)
		b.Failed++
	} else {
		b.Succeeded++
	}
	b.Items = append(b.Items, item)
	return &b.Items[len(b.Items)-1]
}

// finish sets Outcome. An empty batch counts as AllSucceeded. A batch where
// nothing succeeded returns an error wrapping ErrBatchFailed.
func (b *BatchResult) finish() error {
	switch {
	case b.Failed == 0:
		b.Outcome = AllSucceeded
	case b.Succeeded == 0:
		b.Outcome = AllFailed
		return fmt.Errorf("%w: %d of %d failed", ErrBatchFailed, b.Failed, len(b.Items))
	default:
		b.Outcome = PartialSuccess
	}
	return nil
}
