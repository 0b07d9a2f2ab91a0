package ingestion

import "fmt"

// SequenceValidator checks envelope sequences arriving over the wire against
// the single contiguous log ordering. Duplicates (redelivery) are tolerated,
// gaps are not.
//
// Not thread-safe; owned by one consumer goroutine.
type SequenceValidator struct {
	next uint64

	duplicates uint64
	gaps       uint64
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{next: 1}
}

// Validate checks one incoming sequence. It reports whether the sequence was
// already seen; a gap ahead of the expected sequence is an error and does not
// advance the cursor.
func (sv *SequenceValidator) Validate(seq uint64) (duplicate bool, err error) {
	switch {
	case seq < sv.next:
		sv.duplicates++
		return true, nil
	case seq == sv.next:
		sv.next++
		return false, nil
	default:
		sv.gaps++
		return false, fmt.Errorf("sequence gap: expected %d, got %d", sv.next, seq)
	}
}

// Next returns the next expected sequence.
func (sv *SequenceValidator) Next() uint64 {
	return sv.next
}

// SetNext positions the cursor, used when resuming from a persisted watermark.
func (sv *SequenceValidator) SetNext(seq uint64) {
	sv.next = seq
}

// Duplicates returns how many redelivered sequences were skipped.
func (sv *SequenceValidator) Duplicates() uint64 {
	return sv.duplicates
}

// Gaps returns how many gap errors were detected.
func (sv *SequenceValidator) Gaps() uint64 {
	return sv.gaps
}
