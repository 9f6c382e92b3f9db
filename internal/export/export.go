// Package export renders a portal's analyzed calls and entity rollups
// as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/callsense/callsense/internal/model"
	"github.com/callsense/callsense/internal/store"
)

// Service writes export workbooks from the store.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Export writes the portal's ready calls and entity rollups to path.
// One column is added per criterion, ordered by criterion id so the
// layout is stable across exports.
func (s *Service) Export(ctx context.Context, portal, path string) error {
	data, err := s.store.FetchByStatus(ctx, portal, model.StatusReady, true)
	if err != nil {
		return eris.Wrapf(err, "loading ready calls for portal %s", portal)
	}

	f := xlsx.NewFile()
	if err := addCallsSheet(f, data); err != nil {
		return err
	}
	if err := addEntitiesSheet(f, data); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "saving workbook %s", path)
	}

	zap.L().Info("export written",
		zap.String("portal", portal),
		zap.String("path", path),
		zap.Int("calls", len(data.Records)),
		zap.Int("entities", len(data.Entities)))
	return nil
}

func addCallsSheet(f *xlsx.File, data *store.PortalData) error {
	sheet, err := f.AddSheet("calls")
	if err != nil {
		return eris.Wrap(err, "adding calls sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Date", "Phone", "Type", "Category", "Summary"} {
		header.AddCell().SetString(h)
	}
	for _, c := range data.Criteria {
		header.AddCell().SetString(c.Name)
	}

	for _, r := range data.Records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(r.Date.Format(time.RFC3339))
		row.AddCell().SetString(r.PhoneNumber)
		row.AddCell().SetString(string(r.CallType))
		row.AddCell().SetString(r.Data.Category)
		row.AddCell().SetString(r.Summary)

		results := make(map[int]model.CriterionResult, len(r.Data.Criteria))
		for _, cr := range r.Data.Criteria {
			results[cr.ID] = cr
		}
		for _, c := range data.Criteria {
			row.AddCell().SetString(formatResult(results[c.ID]))
		}
	}
	return nil
}

func addEntitiesSheet(f *xlsx.File, data *store.PortalData) error {
	sheet, err := f.AddSheet("entities")
	if err != nil {
		return eris.Wrap(err, "adding entities sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Type", "CRM ID", "Title", "Name", "Summary"} {
		header.AddCell().SetString(h)
	}
	for _, c := range data.Criteria {
		header.AddCell().SetString(c.Name)
	}

	for _, e := range sortedEntities(data.Entities) {
		row := sheet.AddRow()
		row.AddCell().SetString(string(e.Type))
		row.AddCell().SetInt(e.ExternalID)
		row.AddCell().SetString(e.Title)
		row.AddCell().SetString(displayName(e))
		row.AddCell().SetString(e.Summary)

		for _, c := range data.Criteria {
			result := e.Data.Criterion(c.ID)
			if result == nil {
				row.AddCell().SetString("")
				continue
			}
			row.AddCell().SetString(formatResult(*result))
		}
	}
	return nil
}

// sortedEntities orders the entity map for a stable sheet layout.
func sortedEntities(entities map[model.EntityKey]model.Entity) []model.Entity {
	out := make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out
}

// formatResult renders a criterion cell as "text (score)", either half
// optional.
func formatResult(r model.CriterionResult) string {
	if r.Evaluation == nil {
		return r.Text
	}
	score := fmt.Sprintf("%.2f", *r.Evaluation)
	if r.Text == "" {
		return score
	}
	return r.Text + " (" + score + ")"
}

func displayName(e model.Entity) string {
	if e.Name == "" {
		return e.LastName
	}
	if e.LastName == "" {
		return e.Name
	}
	return e.Name + " " + e.LastName
}
