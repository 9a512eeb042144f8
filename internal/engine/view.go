package engine

type ViewType string

const (
	ViewConst   ViewType = "const"
	ViewList    ViewType = "list"
	ViewLoading ViewType = "loading"
)

// FieldView tells a form whether to render a fixed tag list or a picker.
type FieldView struct {
	Type  ViewType `json:"type"`
	Value []string `json:"value,omitempty"`
}

// View renders a selection; nil means the field is still resolving.
func View(sel *Selection) FieldView {
	if sel == nil {
		return FieldView{Type: ViewLoading}
	}
	if sel.Fixed() {
		return FieldView{Type: ViewConst, Value: sel.Candidates}
	}
	return FieldView{Type: ViewList, Value: sel.Candidates}
}
