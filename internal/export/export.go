// Package export renders admin reports as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"strings"

	"monositi/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	listingsSheet = "Listings"
	dateTimeFmt   = "2006-01-02 15:04"
)

var bookingHeaders = []string{
	"ID", "Service", "Customer", "Provider", "Date", "Addons", "Total", "Status",
	"Customer rating", "Provider rating", "Created",
}

var listingHeaders = []string{
	"ID", "Owner", "Kind", "Category", "Title", "City", "Price", "Status", "Verification",
	"Views", "Leads", "Latitude", "Longitude", "Created",
}

// WriteBookings writes all bookings as one sheet to w.
func WriteBookings(w io.Writer, bookings []*models.ServiceBooking) error {
	f, err := newWorkbook(bookingsSheet, bookingHeaders)
	if err != nil {
		return err
	}
	defer f.Close()

	for i, b := range bookings {
		addons := make([]string, 0, len(b.Addons))
		for _, a := range b.Addons {
			addons = append(addons, a.Name)
		}
		row := []interface{}{
			b.ID, b.ServiceID, b.CustomerID, b.ProviderID, b.ScheduledDate, strings.Join(addons, ", "),
			b.TotalPrice, b.Status, ratingCell(b.CustomerRating), ratingCell(b.ProviderRating),
			b.CreatedAt.Format(dateTimeFmt),
		}
		if err := writeRow(f, bookingsSheet, i+2, row); err != nil {
			return err
		}
	}

	return save(f, w)
}

// WriteListings writes all listings as one sheet to w.
func WriteListings(w io.Writer, listings []*models.Listing) error {
	f, err := newWorkbook(listingsSheet, listingHeaders)
	if err != nil {
		return err
	}
	defer f.Close()

	for i, l := range listings {
		row := []interface{}{
			l.ID, l.OwnerID, string(l.Kind), l.Category, l.Title, l.City, l.Price, l.Status,
			l.VerificationStatus, l.Views, l.Leads, l.Latitude, l.Longitude, l.CreatedAt.Format(dateTimeFmt),
		}
		if err := writeRow(f, listingsSheet, i+2, row); err != nil {
			return err
		}
	}

	return save(f, w)
}

func newWorkbook(sheet string, headers []string) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := writeRow(f, sheet, 1, header); err != nil {
		f.Close()
		return nil, err
	}

	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	lastCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", lastCell, style)
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(sheet, "A", lastCol, 16)
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("error writing row %d: %w", row, err)
	}
	return nil
}

func save(f *excelize.File, w io.Writer) error {
	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func ratingCell(r *int) interface{} {
	if r == nil {
		return ""
	}
	return *r
}
