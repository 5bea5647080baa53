package student

import (
	"bytes"
	"strconv"

	"schoolhub/authority"
	"schoolhub/persistence"
	"schoolhub/policy"
	"schoolhub/rls"
	"schoolhub/session"

	"github.com/xuri/excelize/v2"
)

// ExportStudents produces an xlsx workbook of the rows the caller may export.
// The export action has its own grants; its row filter is built like a read.
func ExportStudents(sec *session.Context) ([]byte, error) {
	resolved, err := policy.AuthorizeFunc(sec, EntityStudents, authority.ActionExport)
	if err != nil {
		return nil, err
	}
	filter, err := rls.BuildFilterFunc(resolved, EntityStudents, sec, rls.OpRead)
	if err != nil {
		return nil, err
	}

	students := []Student{}
	db := filter(persistence.ActiveDataSourceManager.GormDB())
	if err := db.Order("id ASC").Find(&students).Error; err != nil {
		return nil, err
	}

	workbook := excelize.NewFile()
	defer workbook.Close()

	sheet := workbook.GetSheetName(0)
	header := []interface{}{"ID", "Name", "Class"}
	if err := workbook.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, s := range students {
		row := []interface{}{s.ID.String(), s.Name, s.ClassID.String()}
		if err := workbook.SetSheetRow(sheet, "A"+strconv.Itoa(i+2), &row); err != nil {
			return nil, err
		}
	}

	buffer := bytes.Buffer{}
	if err := workbook.Write(&buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
