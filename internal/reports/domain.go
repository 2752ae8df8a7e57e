package reports

import "time"

// MarginRow is one manifest's revenue against what the trip cost. Revenue
// is the sum of the loaded shipments' nominal values; cost combines the
// manifest's fee total with its recorded operational costs.
type MarginRow struct {
	ManifestID      int64     `json:"manifest_id"`
	Number          string    `json:"number"`
	ManifestDate    time.Time `json:"manifest_date"`
	VehicleNumber   string    `json:"vehicle_number"`
	ShipmentCount   int       `json:"shipment_count"`
	Revenue         float64   `json:"revenue"`
	TotalBayar      float64   `json:"total_bayar"`
	OperationalCost float64   `json:"operational_cost"`
	Margin          float64   `json:"margin"`
}

// SalesRow aggregates one customer's billing activity in the period.
type SalesRow struct {
	CustomerID   int64   `json:"customer_id"`
	CustomerName string  `json:"customer_name"`
	InvoiceCount int     `json:"invoice_count"`
	TotalBilled  float64 `json:"total_billed"`
	TotalPaid    float64 `json:"total_paid"`
	Outstanding  float64 `json:"outstanding"`
}

// Filter bounds a report by date range and, for margin, destination.
type Filter struct {
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	Destination *string    `json:"destination,omitempty"`
}
