package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"dealdesk/internal"
	dealerrors "dealdesk/internal/errors"
	"dealdesk/internal/sheet"
	"dealdesk/internal/util"
)

// IntakeRecord is one staging row of the intake table (columns A..I).
type IntakeRecord struct {
	Row       int
	Composite string
	Partner   string `validate:"required,notsentinel"`
	Geo       string `validate:"required"`
	Language  string `validate:"required"`
	Source    string
	CPA       string
	CRG       any
	Funnels   string
	CR        any
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func intakeValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("notsentinel", func(fl validator.FieldLevel) bool {
			return !strings.EqualFold(strings.TrimSpace(fl.Field().String()), internal.InvalidFormatMarker)
		})
		validate = v
	})
	return validate
}

// ParseIntakeRow reads a 9-cell intake row. row is the 1-based table row.
func ParseIntakeRow(row int, cells sheet.Row) IntakeRecord {
	cell := func(i int) any {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	str := func(i int) string { return strings.TrimSpace(util.CellString(cell(i))) }

	return IntakeRecord{
		Row:       row,
		Composite: str(internal.IntakeComposite),
		Partner:   str(internal.IntakePartner),
		Geo:       str(internal.IntakeGeo),
		Language:  str(internal.IntakeLanguage),
		Source:    str(internal.IntakeSource),
		CPA:       str(internal.IntakeCPA),
		CRG:       cell(internal.IntakeCRG),
		Funnels:   str(internal.IntakeFunnels),
		CR:        cell(internal.IntakeCR),
	}
}

// Blank reports whether the row holds nothing at all.
func (r IntakeRecord) Blank() bool {
	return r.Composite == "" && r.Partner == "" && r.Geo == "" && r.Language == "" &&
		r.Source == "" && r.CPA == "" && util.IsBlankCell(r.CRG) && r.Funnels == "" && util.IsBlankCell(r.CR)
}

// Validate checks transfer eligibility and returns a MissingRequiredField error
// naming the failing fields.
func (r IntakeRecord) Validate() error {
	err := intakeValidator().Struct(r)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return dealerrors.Wrap(dealerrors.CodeInternal, err, "validate intake row")
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "notsentinel" {
			fields = append(fields, strings.ToLower(fe.Field())+" (invalid format)")
			continue
		}
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return dealerrors.Newf(dealerrors.CodeMissingRequiredField, "row %d: missing %s", r.Row, strings.Join(fields, ", ")).
		WithDetails(map[string]any{"row": r.Row, "fields": fields})
}

// RowIssue is a row-scoped failure collected during expansion or transfer.
type RowIssue struct {
	Row  int             `json:"row"`
	Code dealerrors.Code `json:"code"`
	Msg  string          `json:"message"`
}

func (i RowIssue) String() string {
	return fmt.Sprintf("row %d: %s: %s", i.Row, i.Code, i.Msg)
}

func issueFrom(row int, err error) RowIssue {
	issue := RowIssue{Row: row, Code: dealerrors.CodeOf(err), Msg: err.Error()}
	if e, ok := dealerrors.As(err); ok {
		issue.Msg = e.Message()
	}
	return issue
}
