package branches

func classify(x int) string {
	switch {
	case x < 0:
		return "neg"
	case x == 0:
		return "zero"
	case x < 10:
		return "small"
	}
	return "big"
}

func weekday(d int) int {
	switch d {
	case 0, 6:
		return 0
	case 1:
		return 1
	case 2, 3, 4:
		return 2
	default:
		return 3
	}
}

func both(a, b bool) bool {
	if a && b {
		return true
	}
	if a || b {
		return false
	}
	return !a
}

func clamp(x, lo, hi int) int {
	if x < lo {
		x = lo
	} else if x > hi {
		x = hi
	}
	return x
}
