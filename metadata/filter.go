package metadata

// Eq matches documents whose key equals v.
func Eq(key string, v any) Filter { return Filter{Key: key, Operator: OpEqual, Value: MustValue(v)} }

// Ne matches documents that have key with a value other than v.
func Ne(key string, v any) Filter { return Filter{Key: key, Operator: OpNotEqual, Value: MustValue(v)} }

// Gt matches documents whose numeric key is greater than v.
func Gt(key string, v any) Filter { return Filter{Key: key, Operator: OpGreaterThan, Value: MustValue(v)} }

// Gte matches documents whose numeric key is at least v.
func Gte(key string, v any) Filter {
	return Filter{Key: key, Operator: OpGreaterEqual, Value: MustValue(v)}
}

// Lt matches documents whose numeric key is less than v.
func Lt(key string, v any) Filter { return Filter{Key: key, Operator: OpLessThan, Value: MustValue(v)} }

// Lte matches documents whose numeric key is at most v.
func Lte(key string, v any) Filter { return Filter{Key: key, Operator: OpLessEqual, Value: MustValue(v)} }

// In matches documents whose key equals any of vs.
func In(key string, vs ...any) Filter {
	arr := make([]Value, len(vs))
	for i, v := range vs {
		arr[i] = MustValue(v)
	}
	return Filter{Key: key, Operator: OpIn, Value: Array(arr)}
}

// Matches checks if the provided document matches this filter.
// A missing key never matches.
func (f *Filter) Matches(doc Document) bool {
	value, exists := doc[f.Key]
	if !exists {
		return false
	}

	switch f.Operator {
	case OpEqual:
		return compareEqual(value, f.Value)
	case OpNotEqual:
		return !compareEqual(value, f.Value)
	case OpGreaterThan:
		return compareNumbers(value, f.Value, func(a, b float64) bool { return a > b })
	case OpGreaterEqual:
		return compareNumbers(value, f.Value, func(a, b float64) bool { return a >= b })
	case OpLessThan:
		return compareNumbers(value, f.Value, func(a, b float64) bool { return a < b })
	case OpLessEqual:
		return compareNumbers(value, f.Value, func(a, b float64) bool { return a <= b })
	case OpIn:
		for _, item := range f.Value.A {
			if compareEqual(value, item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Matches checks if the provided document matches all filters in the set.
func (fs *FilterSet) Matches(doc Document) bool {
	for i := range fs.Filters {
		if !fs.Filters[i].Matches(doc) {
			return false
		}
	}
	return true
}

func compareEqual(a, b Value) bool {
	return a.Key() == b.Key()
}

func compareNumbers(a, b Value, cmp func(a, b float64) bool) bool {
	x, ok := a.Number()
	if !ok {
		return false
	}
	y, ok := b.Number()
	if !ok {
		return false
	}
	return cmp(x, y)
}
