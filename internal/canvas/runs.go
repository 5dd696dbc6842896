package canvas

// Runs partitions elements into display rows: consecutive action elements
// (submit, reset) share one run, every other element gets its own. Order is
// preserved. The result is derived and must not be stored.
func Runs(elements []Element) [][]Element {
	runs := make([][]Element, 0, len(elements))
	for _, el := range elements {
		n := len(runs)
		if el.Type.IsAction() && n > 0 && runs[n-1][0].Type.IsAction() {
			runs[n-1] = append(runs[n-1], el)
			continue
		}
		runs = append(runs, []Element{el})
	}
	return runs
}
