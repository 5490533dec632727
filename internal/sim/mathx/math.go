package mathx

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// SignInt returns -1, 0 or 1 matching the sign of x.
func SignInt(x int) int {
	if x < 0 {
		return -1
	}
	if x > 0 {
		return 1
	}
	return 0
}

// ClampInt limits v to [lo, hi]. lo <= hi.
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
