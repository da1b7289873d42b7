// Package export renders submissions as an XLSX workbook for the back-office.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/upb/imu-filing/models"
)

const (
	SheetSubmissions = "Submissions"
	SheetOwners      = "Owners"
	SheetProperties  = "Properties"
)

var (
	submissionHeader = []string{
		"Submission ID", "Created At", "Status", "Contact Name", "Contact Email", "Contact Phone",
		"Owners", "Properties", "Document Retrieval", "Tier", "Base", "Additional Owners",
		"Additional Properties", "Retrieval Fee", "Total", "Currency", "Paid At", "Notes",
	}
	ownerHeader = []string{
		"Submission ID", "Owner ID", "First Name", "Last Name", "Tax Code", "Date of Birth",
		"Citizenship", "Country of Residence", "Resident in Italy", "Email", "Phone", "Shares",
	}
	propertyHeader = []string{
		"Submission ID", "Property ID", "Address", "Province", "Postal Code", "Cadastral",
		"Activity", "Purchase Date", "Purchase Price", "Sale Date", "Sale Price",
		"Occupancy", "Rental Income", "Owners",
	}
)

// Workbook builds the three-sheet workbook for the given submissions. The
// children of every submission must be loaded.
func Workbook(subs []*models.Submission) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSubmissions); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetOwners, SheetProperties} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	sheets := []struct {
		name   string
		header []string
		rows   [][]interface{}
	}{
		{SheetSubmissions, submissionHeader, submissionRows(subs)},
		{SheetOwners, ownerHeader, ownerRows(subs)},
		{SheetProperties, propertyHeader, propertyRows(subs)},
	}

	for _, sh := range sheets {
		if err := writeSheet(f, sh.name, sh.header, sh.rows, headerStyle); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, name string, header []string, rows [][]interface{}, headerStyle int) error {
	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}

	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set %s header style: %w", name, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		row := row
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", name, i+2, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetColWidth(name, "A", lastCol, 18); err != nil {
		return fmt.Errorf("failed to set %s column width: %w", name, err)
	}
	return f.SetPanes(name, &excelize.Panes{Freeze: true, Split: false, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func submissionRows(subs []*models.Submission) [][]interface{} {
	rows := make([][]interface{}, 0, len(subs))
	for _, s := range subs {
		p := s.Pricing
		rows = append(rows, []interface{}{
			s.ID.String(),
			formatTime(&s.CreatedAt),
			string(s.Status),
			s.Contact.Name,
			s.Contact.Email,
			s.Contact.Phone,
			p.OwnersCount,
			p.PropertiesCount,
			yesNo(s.HasDocumentRetrieval),
			string(p.Tier),
			money(&p.BasePrice),
			money(&p.AdditionalOwnersPrice),
			money(&p.AdditionalPropertiesPrice),
			money(p.DocumentRetrievalFee),
			money(&p.Total),
			p.Currency,
			formatTime(s.PaidAt),
			s.Notes,
		})
	}
	return rows
}

func ownerRows(subs []*models.Submission) [][]interface{} {
	var rows [][]interface{}
	for _, s := range subs {
		for i := range s.Owners {
			o := &s.Owners[i]
			var shares []string
			for _, a := range s.Assignments {
				if a.OwnerID != o.ID {
					continue
				}
				if p := s.PropertyByID(a.PropertyID); p != nil {
					shares = append(shares, fmt.Sprintf("%s%% %s", a.OwnershipPercentage.String(), p.Address.String()))
				}
			}
			rows = append(rows, []interface{}{
				s.ID.String(),
				o.ID.String(),
				o.FirstName,
				o.LastName,
				o.TaxCode,
				formatDate(o.DateOfBirth),
				o.Citizenship,
				o.CountryOfResidence,
				yesNo(o.IsResidentInItaly),
				o.Email,
				o.Phone,
				strings.Join(shares, "; "),
			})
		}
	}
	return rows
}

func propertyRows(subs []*models.Submission) [][]interface{} {
	var rows [][]interface{}
	for _, s := range subs {
		for i := range s.Properties {
			p := &s.Properties[i]
			var owners []string
			for _, a := range s.Assignments {
				if a.PropertyID != p.ID {
					continue
				}
				if o := s.OwnerByID(a.OwnerID); o != nil {
					entry := fmt.Sprintf("%s %s%%", o.FullName(), a.OwnershipPercentage.String())
					if a.ResidentAtProperty {
						entry += " (resident)"
					}
					owners = append(owners, entry)
				}
			}
			var occupancy []string
			for _, period := range p.Occupancy {
				occupancy = append(occupancy, fmt.Sprintf("%s %dm", period.Status, period.Months))
			}
			rows = append(rows, []interface{}{
				s.ID.String(),
				p.ID.String(),
				p.Address.String(),
				p.Address.Province,
				p.Address.PostalCode,
				cadastral(p.Cadastral),
				string(p.ActivityType),
				formatDate(p.PurchaseDate),
				money(p.PurchasePrice),
				formatDate(p.SaleDate),
				money(p.SalePrice),
				strings.Join(occupancy, ", "),
				money(p.RentalIncome),
				strings.Join(owners, "; "),
			})
		}
	}
	return rows
}

func cadastral(c *models.CadastralData) string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.Sheet != "" {
		parts = append(parts, "fg. "+c.Sheet)
	}
	if c.Parcel != "" {
		parts = append(parts, "part. "+c.Parcel)
	}
	if c.Subordinate != "" {
		parts = append(parts, "sub. "+c.Subordinate)
	}
	if c.Category != "" {
		parts = append(parts, "cat. "+c.Category)
	}
	return strings.Join(parts, " ")
}

// money returns a float so spreadsheets can sum the column; nil is an empty cell
func money(d *decimal.Decimal) interface{} {
	if d == nil {
		return ""
	}
	f, _ := d.Round(2).Float64()
	return f
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(d *models.Date) string {
	if d == nil || d.IsZero() {
		return ""
	}
	return d.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
