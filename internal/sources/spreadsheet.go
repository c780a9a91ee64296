package sources

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ramiqadoumi/task-inbox/internal/domain"
)

// Spreadsheet column names. Rows must use these exact keys; other columns are ignored.
const (
	ColumnTitle       = "title"
	ColumnDescription = "description"
	ColumnDueDate     = "due_date"
	ColumnPriority    = "priority"
	ColumnDuration    = "duration_minutes"
	ColumnTags        = "tags"
)

// SpreadsheetRow is one imported row. Cells are raw strings as exported.
type SpreadsheetRow struct {
	SheetID string            `json:"sheet_id,omitempty"`
	Row     int               `json:"row,omitempty"`
	Cells   map[string]string `json:"cells"`
}

// Spreadsheet turns one spreadsheet row into a task.
type Spreadsheet struct{}

func (Spreadsheet) Source() domain.Source { return domain.SourceSpreadsheet }

func (Spreadsheet) Normalize(payload []byte) (domain.TaskDraft, error) {
	var row SpreadsheetRow
	if err := decode(domain.SourceSpreadsheet, payload, &row); err != nil {
		return domain.TaskDraft{}, err
	}
	if row.Cells == nil {
		return domain.TaskDraft{}, &PayloadError{Source: domain.SourceSpreadsheet, Err: errors.New("row has no cells")}
	}

	d := domain.TaskDraft{
		Title:       row.Cells[ColumnTitle],
		Description: strings.TrimSpace(row.Cells[ColumnDescription]),
		Priority:    priorityPtr(row.Cells[ColumnPriority]),
		Source:      domain.SourceSpreadsheet,
		Tags:        strings.Split(row.Cells[ColumnTags], ","),
	}
	if row.SheetID != "" {
		d.ExternalID = row.SheetID + ":" + strconv.Itoa(row.Row)
	}
	if cell := strings.TrimSpace(row.Cells[ColumnDueDate]); cell != "" {
		due, err := parseTime(cell)
		if err != nil {
			return d, &domain.InvalidTaskError{Field: ColumnDueDate, Reason: err.Error()}
		}
		d.DueDate = &due
	}
	minutes, err := parseDuration(row.Cells[ColumnDuration])
	if err != nil {
		return d, &domain.InvalidTaskError{Field: ColumnDuration, Reason: err.Error()}
	}
	d.DurationMinutes = minutes
	return d, d.Clean()
}
