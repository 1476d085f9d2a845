package wb

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"wbpulse/internal/types"
)

// wbTime handles the two timestamp shapes WB emits: RFC3339 and a bare
// "2006-01-02T15:04:05" local time (Moscow).
type wbTime struct {
	time.Time
}

var mskLocation = time.FixedZone("MSK", 3*60*60)

func (t *wbTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" || s == "0001-01-01T00:00:00" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	parsed, err := time.ParseInLocation("2006-01-02T15:04:05", s, mskLocation)
	if err != nil {
		return fmt.Errorf("unsupported WB timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

type wbOrder struct {
	Date            wbTime  `json:"date"`
	LastChangeDate  wbTime  `json:"lastChangeDate"`
	SupplierArticle string  `json:"supplierArticle"`
	NmID            int64   `json:"nmId"`
	Subject         string  `json:"subject"`
	Brand           string  `json:"brand"`
	TotalPrice      float64 `json:"totalPrice"`
	DiscountPercent float64 `json:"discountPercent"`
	IsCancel        bool    `json:"isCancel"`
	WarehouseName   string  `json:"warehouseName"`
	RegionName      string  `json:"regionName"`
	SRID            string  `json:"srid"`
}

type wbSale struct {
	Date            wbTime  `json:"date"`
	SaleID          string  `json:"saleID"`
	SRID            string  `json:"srid"`
	SupplierArticle string  `json:"supplierArticle"`
	NmID            int64   `json:"nmId"`
	Brand           string  `json:"brand"`
	TotalPrice      float64 `json:"totalPrice"`
	ForPay          float64 `json:"forPay"`
}

type wbStockRow struct {
	LastChangeDate  wbTime `json:"lastChangeDate"`
	SupplierArticle string `json:"supplierArticle"`
	NmID            int64  `json:"nmId"`
	Subject         string `json:"subject"`
	TechSize        string `json:"techSize"`
	Quantity        int    `json:"quantity"`
	WarehouseName   string `json:"warehouseName"`
}

type wbFeedback struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	ProductVal     int    `json:"productValuation"`
	UserName       string `json:"userName"`
	CreatedDate    wbTime `json:"createdDate"`
	WasAnswered    bool   `json:"wasAnswered"`
	ProductDetails struct {
		NmID        int64  `json:"nmId"`
		ProductName string `json:"productName"`
	} `json:"productDetails"`
}

type wbFeedbackList struct {
	Data struct {
		Feedbacks []wbFeedback `json:"feedbacks"`
	} `json:"data"`
}

// wbDateFrom formats a lower bound the statistics API accepts.
func wbDateFrom(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}

// Orders pulls orders changed since the given time for one cabinet.
func (c *Client) Orders(ctx context.Context, cabinetID, apiKey string, since time.Time) ([]types.Order, error) {
	var rows []wbOrder
	q := url.Values{"dateFrom": {wbDateFrom(since)}}
	if err := c.get(ctx, c.cfg.StatisticsBaseURL, "/api/v1/supplier/orders", apiKey, q, &rows); err != nil {
		return nil, fmt.Errorf("pull orders: %w", err)
	}

	orders := make([]types.Order, 0, len(rows))
	for _, r := range rows {
		status := types.OrderActive
		if r.IsCancel {
			status = types.OrderCancelled
		}
		orders = append(orders, types.Order{
			CabinetID:      cabinetID,
			SRID:           r.SRID,
			NmID:           r.NmID,
			Article:        r.SupplierArticle,
			Subject:        r.Subject,
			Brand:          r.Brand,
			Status:         status,
			TotalPrice:     r.TotalPrice,
			Warehouse:      r.WarehouseName,
			Region:         r.RegionName,
			OrderedAt:      r.Date.Time,
			LastChangeDate: r.LastChangeDate.Time,
		})
	}
	return orders, nil
}

// Sales pulls sale and return records since the given time for one cabinet.
func (c *Client) Sales(ctx context.Context, cabinetID, apiKey string, since time.Time) ([]types.Sale, error) {
	var rows []wbSale
	q := url.Values{"dateFrom": {wbDateFrom(since)}}
	if err := c.get(ctx, c.cfg.StatisticsBaseURL, "/api/v1/supplier/sales", apiKey, q, &rows); err != nil {
		return nil, fmt.Errorf("pull sales: %w", err)
	}

	sales := make([]types.Sale, 0, len(rows))
	for _, r := range rows {
		sales = append(sales, types.Sale{
			CabinetID:  cabinetID,
			SaleID:     r.SaleID,
			SRID:       r.SRID,
			NmID:       r.NmID,
			Article:    r.SupplierArticle,
			Brand:      r.Brand,
			TotalPrice: r.TotalPrice,
			ForPay:     r.ForPay,
			SoldAt:     r.Date.Time,
		})
	}
	return sales, nil
}

// Stocks pulls the current inventory snapshot. WB returns one row per
// (warehouse, size); rows are aggregated per product with quantities summed
// across warehouses for each size.
func (c *Client) Stocks(ctx context.Context, cabinetID, apiKey string) ([]types.Stock, error) {
	var rows []wbStockRow
	// The stocks endpoint requires dateFrom but treats it as a change-date
	// filter; a distant past value yields the full snapshot.
	q := url.Values{"dateFrom": {"2019-06-20"}}
	if err := c.get(ctx, c.cfg.StatisticsBaseURL, "/api/v1/supplier/stocks", apiKey, q, &rows); err != nil {
		return nil, fmt.Errorf("pull stocks: %w", err)
	}

	type agg struct {
		stock types.Stock
		sizes map[string]int
	}
	byProduct := make(map[int64]*agg)
	for _, r := range rows {
		a, ok := byProduct[r.NmID]
		if !ok {
			a = &agg{
				stock: types.Stock{
					CabinetID: cabinetID,
					NmID:      r.NmID,
					Article:   r.SupplierArticle,
					Subject:   r.Subject,
				},
				sizes: make(map[string]int),
			}
			byProduct[r.NmID] = a
		}
		a.sizes[r.TechSize] += r.Quantity
		if r.LastChangeDate.After(a.stock.UpdatedAt) {
			a.stock.UpdatedAt = r.LastChangeDate.Time
		}
	}

	stocks := make([]types.Stock, 0, len(byProduct))
	for _, a := range byProduct {
		names := make([]string, 0, len(a.sizes))
		for name := range a.sizes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			a.stock.Sizes = append(a.stock.Sizes, types.StockSize{
				TechSize: name,
				Quantity: a.sizes[name],
			})
		}
		stocks = append(stocks, a.stock)
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].NmID < stocks[j].NmID })
	return stocks, nil
}

const feedbackPageSize = 1000

// Reviews pulls buyer feedback pages until exhausted. The feedbacks API is
// paginated with take/skip and capped at a few thousand unanswered entries,
// so a full walk stays cheap.
func (c *Client) Reviews(ctx context.Context, cabinetID, apiKey string) ([]types.Review, error) {
	var reviews []types.Review
	for skip := 0; ; skip += feedbackPageSize {
		var page wbFeedbackList
		q := url.Values{
			"isAnswered": {"false"},
			"take":       {strconv.Itoa(feedbackPageSize)},
			"skip":       {strconv.Itoa(skip)},
			"order":      {"dateDesc"},
		}
		if err := c.get(ctx, c.cfg.FeedbacksBaseURL, "/api/v1/feedbacks", apiKey, q, &page); err != nil {
			return nil, fmt.Errorf("pull reviews: %w", err)
		}
		for _, f := range page.Data.Feedbacks {
			reviews = append(reviews, types.Review{
				CabinetID:   cabinetID,
				ReviewID:    f.ID,
				NmID:        f.ProductDetails.NmID,
				ProductName: f.ProductDetails.ProductName,
				Rating:      f.ProductVal,
				Text:        f.Text,
				UserName:    f.UserName,
				CreatedDate: f.CreatedDate.Time,
				Answered:    f.WasAnswered,
			})
		}
		if len(page.Data.Feedbacks) < feedbackPageSize {
			break
		}
	}
	return reviews, nil
}
