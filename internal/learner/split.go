package learner

import (
	"recal/internal/record"
)

// split cuts a chronologically ordered window into train, validation
// and test slices at 60/20/20. Records never cross slices and the test
// slice is always the most recent, so selection on validation can
// never peek at the data the gates judge.
func split(records []record.DecisionRecord) (train, validation, test []record.DecisionRecord) {
	n := len(records)
	trainEnd := n * 6 / 10
	valEnd := n * 8 / 10
	return records[:trainEnd], records[trainEnd:valEnd], records[valEnd:]
}
