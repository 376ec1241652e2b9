package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/kyiku/tangram-back/internal/record"
	"github.com/kyiku/tangram-back/internal/response"
	"github.com/kyiku/tangram-back/internal/stopwatch"
)

// RecordHandler serves a player's progress records.
type RecordHandler struct {
	records RecordBookInterface
	catalog LevelCatalog
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(records RecordBookInterface, catalog LevelCatalog) *RecordHandler {
	return &RecordHandler{records: records, catalog: catalog}
}

// LevelRecord is one row of the records listing.
type LevelRecord struct {
	record.Record
	Name         string `json:"name"`
	BestTimeText string `json:"bestTimeText,omitempty"`
}

// List handles GET /api/records.
func (h *RecordHandler) List(c echo.Context) error {
	book := h.records.Book(playerID(c))

	summaries := h.catalog.List()
	rows := make([]LevelRecord, 0, len(summaries))
	for _, s := range summaries {
		rec := book.Get(s.LevelID)
		row := LevelRecord{Record: rec, Name: s.Name}
		if rec.HasBest {
			row.BestTimeText = stopwatch.FormatTime(rec.BestTime)
		}
		rows = append(rows, row)
	}

	return response.Success(c, map[string]interface{}{
		"totals":  book.Totals(h.catalog.Len()),
		"records": rows,
	})
}
