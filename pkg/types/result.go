package types

// Result is the outcome of one work item, tagged with the worker that
// produced it.
type Result[T, U any] struct {
	Producer Rank
	Item     T
	Metric   U
}

// CollatzResult is the result type of the Collatz workload.
type CollatzResult = Result[uint64, int]

// Row is a single output record handed to result sinks.
// Seq is the zero-based arrival position of the result within its run.
type Row struct {
	Seq    int    `json:"seq"`
	Number uint64 `json:"number"`
	Length int    `json:"length"`
	Rank   Rank   `json:"rank"`
}

// RowsFromResults converts results into sink rows, preserving their order.
func RowsFromResults(results []CollatzResult) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{
			Seq:    i,
			Number: r.Item,
			Length: r.Metric,
			Rank:   r.Producer,
		}
	}
	return rows
}
