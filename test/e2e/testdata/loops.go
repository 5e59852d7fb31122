package loops

func sum(n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s += i
	}
	return s
}

func nested(a [][]int) int {
	total := 0
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(a[i]); j++ {
			if a[i][j] < 0 {
				continue
			}
			total += a[i][j]
		}
	}
	return total
}

func search(xs []int, x int) int {
outer:
	for i := range xs {
		for k := 0; k < 3; k++ {
			if xs[i] == x+k {
				break outer
			}
		}
		if xs[i] > x {
			return i
		}
	}
	return -1
}

func countdown(n int) (steps int) {
loop:
	if n <= 0 {
		return
	}
	n--
	steps++
	goto loop
}
