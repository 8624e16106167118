package notebook

import (
	"errors"
	"fmt"
)

// CellError reports a chapter whose code failed while executing. CellIndex is
// -1 when the engine failed without pointing at a cell.
type CellError struct {
	Chapter   string `json:"chapter"`
	CellIndex int    `json:"cell_index"`
	Message   string `json:"message"`
}

func (e *CellError) Error() string {
	if e.CellIndex < 0 {
		return fmt.Sprintf("execute %s: %s", e.Chapter, e.Message)
	}
	return fmt.Sprintf("execute %s: cell %d: %s", e.Chapter, e.CellIndex, e.Message)
}

func AsCellError(err error) (*CellError, bool) {
	var ce *CellError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ErrorMessage condenses an error output to "EName: EValue".
func (o Output) ErrorMessage() string {
	switch {
	case o.EName != "" && o.EValue != "":
		return o.EName + ": " + o.EValue
	case o.EName != "":
		return o.EName
	default:
		return o.EValue
	}
}
