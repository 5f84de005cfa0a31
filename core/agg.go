package core

import (
	"github.com/getlantern/gather/common"
)

// combineValue merges two partial aggregate values for the given function.
// Partial aggregates arrive as numbers of whatever width the codec chose;
// they combine in float64 space like every other value in the engine.
func combineValue(kind common.AggKind, existing interface{}, incoming interface{}) interface{} {
	if existing == nil {
		return incoming
	}
	if incoming == nil {
		return existing
	}
	a, _ := toFloat(existing)
	b, _ := toFloat(incoming)
	switch kind {
	case common.Sum, common.Count:
		return a + b
	case common.Min:
		if b < a {
			return b
		}
		return a
	case common.Max:
		if b > a {
			return b
		}
		return a
	}
	return incoming
}
