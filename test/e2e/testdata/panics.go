package panics

func must(x int, err error) int {
	if err != nil {
		panic(err)
	}
	return x
}

func index(xs []int, i int) int {
	if i < 0 || i >= len(xs) {
		panic("out of range")
	}
	return xs[i]
}

func step() {}

func guarded(n int) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	for i := 0; i < n; i++ {
		step()
	}
	return true
}

func deferLoop(n int) int {
	total := 0
	for i := 0; i < n; i++ {
		defer step()
		if i%2 == 0 {
			continue
		}
		total += i
	}
	return total
}
