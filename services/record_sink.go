package services

import (
	"os"
	"path/filepath"

	"github.com/fenilmodi00/ipo-collector/models"
	"github.com/fenilmodi00/ipo-collector/shared"
	"github.com/sirupsen/logrus"
	"github.com/tealeg/xlsx/v2"
)

const outputSheetName = "Recent IPOs"

// OutputColumns is the fixed schema of the tabular output, in column order.
var OutputColumns = []string{
	"Company",
	"Company Link",
	"Listing Date",
	"IPO MCap",
	"IPO Price",
	"Current Price",
	"Percent Change",
}

// RecordSink appends accepted records to the XLSX output, preserving prior
// rows and column order. The workbook is created with the schema header when
// it does not yet exist, and saved via temp-file-then-rename so a failed
// write never leaves the output worse than its last successful append.
type RecordSink struct {
	path string
}

// NewRecordSink creates a sink writing to the given workbook path.
func NewRecordSink(path string) *RecordSink {
	return &RecordSink{path: path}
}

// Append writes all of the run's accepted records in one operation.
func (s *RecordSink) Append(records []models.IPORecord) error {
	if len(records) == 0 {
		return nil
	}

	logger := logrus.WithFields(logrus.Fields{
		"component": "RecordSink",
		"path":      s.path,
		"records":   len(records),
	})

	workbook, sheet, err := s.openOrCreateWorkbook()
	if err != nil {
		return err
	}

	for _, record := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(record.Company)
		row.AddCell().SetString(record.CompanyLink)
		row.AddCell().SetString(record.ListingDate.Format("2006-01-02"))
		row.AddCell().SetFloat(record.IPOMCap)
		row.AddCell().SetFloat(record.IPOPrice)
		row.AddCell().SetFloat(record.CurrentPrice)
		row.AddCell().SetFloat(record.PercentChange)
	}

	if err := s.saveAtomically(workbook); err != nil {
		return err
	}

	logger.Info("Appended records to tabular output")
	return nil
}

// openOrCreateWorkbook opens the existing workbook or creates a fresh one
// with the schema header.
func (s *RecordSink) openOrCreateWorkbook() (*xlsx.File, *xlsx.Sheet, error) {
	if _, err := os.Stat(s.path); err == nil {
		workbook, openErr := xlsx.OpenFile(s.path)
		if openErr != nil {
			return nil, nil, shared.NewSinkWriteError(s.path, openErr)
		}
		if len(workbook.Sheets) == 0 {
			sheet, addErr := workbook.AddSheet(outputSheetName)
			if addErr != nil {
				return nil, nil, shared.NewSinkWriteError(s.path, addErr)
			}
			writeHeader(sheet)
			return workbook, sheet, nil
		}
		return workbook, workbook.Sheets[0], nil
	} else if !os.IsNotExist(err) {
		return nil, nil, shared.NewSinkWriteError(s.path, err)
	}

	workbook := xlsx.NewFile()
	sheet, err := workbook.AddSheet(outputSheetName)
	if err != nil {
		return nil, nil, shared.NewSinkWriteError(s.path, err)
	}
	writeHeader(sheet)

	logrus.WithFields(logrus.Fields{
		"component": "RecordSink",
		"path":      s.path,
	}).Info("Creating new tabular output with schema header")

	return workbook, sheet, nil
}

func writeHeader(sheet *xlsx.Sheet) {
	header := sheet.AddRow()
	for _, column := range OutputColumns {
		header.AddCell().SetString(column)
	}
}

// saveAtomically writes the workbook to a temp file and renames it over the
// target path.
func (s *RecordSink) saveAtomically(workbook *xlsx.File) error {
	tempFile, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return shared.NewSinkWriteError(s.path, err)
	}
	tempPath := tempFile.Name()
	tempFile.Close()

	if err := workbook.Save(tempPath); err != nil {
		os.Remove(tempPath)
		return shared.NewSinkWriteError(s.path, err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return shared.NewSinkWriteError(s.path, err)
	}

	return nil
}
