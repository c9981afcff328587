package httpserver

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/phenrril/kitehouse/internal/domain"
	"github.com/phenrril/kitehouse/internal/usecase"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxImportBytes  = 16 << 20
)

var (
	orderHeader = []any{"Order ID", "Created", "Status", "Payment", "Payment ID", "Customer", "Email", "Phone", "Address", "Items", "Amount", "Currency"}
	itemHeader  = []any{"Order ID", "Product", "Variant", "SKU", "Quantity", "Unit price", "Subtotal", "Still listed"}
)

// adminExportOrders streams every order matching the status filter as a workbook
// with one sheet of orders and one of order lines.
func (s *Server) adminExportOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	book, err := s.ordersWorkbook(r, f)
	if err != nil {
		fail(w, r, err)
		return
	}
	defer book.Close()

	name := fmt.Sprintf("orders-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	if err := book.Write(w); err != nil {
		fail(w, r, err)
	}
}

func (s *Server) ordersWorkbook(r *http.Request, f domain.OrderFilter) (*excelize.File, error) {
	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", "Orders"); err != nil {
		return nil, err
	}
	if _, err := book.NewSheet("Items"); err != nil {
		return nil, err
	}
	bold, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for sheet, header := range map[string][]any{"Orders": orderHeader, "Items": itemHeader} {
		if err := book.SetSheetRow(sheet, "A1", &header); err != nil {
			return nil, err
		}
		if err := book.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return nil, err
		}
	}

	orderRow, itemRow := 2, 2
	f.Page = domain.Page{Page: 1, Limit: domain.MaxPageLimit}
	for {
		list, total, err := s.orders.List(r.Context(), f)
		if err != nil {
			return nil, err
		}
		for _, o := range list {
			if err := writeOrderRow(book, orderRow, &o); err != nil {
				return nil, err
			}
			orderRow++
			for _, it := range o.Items {
				cell, _ := excelize.CoordinatesToCellName(1, itemRow)
				row := []any{o.ID.String(), it.ProductName, it.VariantName, it.VariantSKU, it.Quantity,
					it.Price.InexactFloat64(), it.Subtotal().InexactFloat64(), yesNo(it.ProductAvailable)}
				if err := book.SetSheetRow("Items", cell, &row); err != nil {
					return nil, err
				}
				itemRow++
			}
		}
		if len(list) == 0 || int64(f.Page.Page*f.Page.Limit) >= total {
			break
		}
		f.Page.Page++
	}
	return book, nil
}

func writeOrderRow(book *excelize.File, n int, o *domain.Order) error {
	var items []string
	for _, it := range o.Items {
		label := it.ProductName
		if it.VariantName != "" {
			label += " (" + it.VariantName + ")"
		}
		items = append(items, fmt.Sprintf("%d x %s", it.Quantity, label))
	}
	paymentID := ""
	if o.PaymentID != nil {
		paymentID = *o.PaymentID
	}
	cell, _ := excelize.CoordinatesToCellName(1, n)
	row := []any{
		o.ID.String(), o.CreatedAt.UTC().Format(time.RFC3339), string(o.Status), string(o.PaymentStatus), paymentID,
		o.ShippingInfo.Name, o.ShippingInfo.Email, o.ShippingInfo.Phone, o.ShippingInfo.Address,
		strings.Join(items, "; "), o.Amount.InexactFloat64(), o.Currency,
	}
	return book.SetSheetRow("Orders", cell, &row)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// adminImportProducts reads a workbook uploaded as the "file" form field. Each
// sheet needs a header row with at least a "name" column.
func (s *Server) adminImportProducts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		fail(w, r, domain.Validationf("expected a multipart upload"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		fail(w, r, domain.Validationf("file is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		fail(w, r, domain.Validationf("file is empty"))
		return
	}

	rows, skipped, err := parseCatalog(data)
	if err != nil {
		fail(w, r, err)
		return
	}
	rep, err := s.products.ImportCatalog(r.Context(), rows)
	if err != nil {
		fail(w, r, err)
		return
	}
	rep.Skipped = append(skipped, rep.Skipped...)
	writeJSON(w, http.StatusOK, rep)
}

func parseCatalog(data []byte) ([]usecase.CatalogRow, []string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, domain.Validationf("file is not a valid xlsx workbook")
	}
	defer book.Close()

	var out []usecase.CatalogRow
	skipped := []string{}
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil || len(rows) < 2 {
			continue
		}
		cols := map[string]int{}
		for i, h := range rows[0] {
			cols[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")] = i
		}
		if _, ok := cols["name"]; !ok {
			continue
		}
		for i, row := range rows[1:] {
			line := i + 2
			get := func(name string) string {
				if idx, ok := cols[name]; ok && idx < len(row) {
					return strings.TrimSpace(row[idx])
				}
				return ""
			}
			if strings.Join(row, "") == "" {
				continue
			}
			cr := usecase.CatalogRow{
				Line:        line,
				Category:    get("category"),
				Name:        get("name"),
				Description: get("description"),
				ImageURL:    get("image_url"),
				SKU:         get("sku"),
				VariantName: get("variant_name"),
				Attributes:  parseAttributes(get("attributes")),
			}
			var perr error
			if cr.Price, perr = parseMoney(get("price")); perr == nil {
				if cr.Stock, perr = parseCount(get("stock")); perr == nil {
					if cr.VariantPrice, perr = parseMoney(get("variant_price")); perr == nil {
						cr.VariantStock, perr = parseCount(get("variant_stock"))
					}
				}
			}
			if perr != nil {
				skipped = append(skipped, fmt.Sprintf("%s row %d: %v", sheet, line, perr))
				continue
			}
			out = append(out, cr)
		}
	}
	return out, skipped, nil
}

// parseAttributes reads "size=L; color=Red".
func parseAttributes(s string) domain.Attributes {
	if s == "" {
		return nil
	}
	attrs := domain.Attributes{}
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if ok && k != "" && v != "" {
			attrs[k] = v
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func parseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

func parseCount(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid stock %q", s)
	}
	return n, nil
}
