package hbl

//ExampleRange is the half interval [Begin, End) of positions in the examples index.
type ExampleRange struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

//Len returns the number of examples in the range.
func (r ExampleRange) Len() int {
	return r.End - r.Begin
}

//SplitAt divides the range after its first nLeft positions.
func (r ExampleRange) SplitAt(nLeft int) (left, right ExampleRange) {
	middle := r.Begin + nLeft
	return ExampleRange{r.Begin, middle}, ExampleRange{middle, r.End}
}

//Of returns the examples covered by the range.
func (r ExampleRange) Of(examplesIndex []int) []int {
	return examplesIndex[r.Begin:r.End]
}
