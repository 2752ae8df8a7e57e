package shipments

import "time"

// Shipment is one consignment (Surat Jalan). A shipment becomes invoiceable
// once its nominal is positive and it is not yet tied to a live invoice.
type Shipment struct {
	ID               int64      `json:"id"`
	SPBNumber        string     `json:"spb_number"`
	CustomerID       *int64     `json:"customer_id,omitempty"`
	CustomerName     *string    `json:"customer_name,omitempty"`
	Origin           string     `json:"origin"`
	Destination      string     `json:"destination"`
	GoodsDescription *string    `json:"goods_description,omitempty"`
	Nominal          float64    `json:"nominal"`
	Colli            int        `json:"colli"`
	WeightKg         float64    `json:"weight_kg"`
	ManifestID       *int64     `json:"manifest_id,omitempty"`
	InvoiceGenerated bool       `json:"invoice_generated"`
	SJReturned       bool       `json:"sj_returned"`
	SJReturnedAt     *time.Time `json:"sj_returned_at,omitempty"`
	PODKey           *string    `json:"pod_key,omitempty"`
	ShipmentDate     time.Time  `json:"shipment_date"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CreateShipmentRequest carries fields for registering a shipment.
type CreateShipmentRequest struct {
	SPBNumber        string    `json:"spb_number" validate:"required,max=50"`
	CustomerID       *int64    `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	CustomerName     *string   `json:"customer_name,omitempty" validate:"omitempty,max=200"`
	Origin           string    `json:"origin" validate:"required,max=100"`
	Destination      string    `json:"destination" validate:"required,max=100"`
	GoodsDescription *string   `json:"goods_description,omitempty" validate:"omitempty,max=500"`
	Nominal          float64   `json:"nominal" validate:"gte=0"`
	Colli            int       `json:"colli" validate:"gte=0"`
	WeightKg         float64   `json:"weight_kg" validate:"gte=0"`
	ShipmentDate     time.Time `json:"shipment_date" validate:"required"`
}

// UpdateShipmentRequest carries optional fields for a partial update.
type UpdateShipmentRequest struct {
	CustomerID       *int64   `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	CustomerName     *string  `json:"customer_name,omitempty" validate:"omitempty,max=200"`
	Origin           *string  `json:"origin,omitempty" validate:"omitempty,max=100"`
	Destination      *string  `json:"destination,omitempty" validate:"omitempty,max=100"`
	GoodsDescription *string  `json:"goods_description,omitempty" validate:"omitempty,max=500"`
	Nominal          *float64 `json:"nominal,omitempty" validate:"omitempty,gte=0"`
	Colli            *int     `json:"colli,omitempty" validate:"omitempty,gte=0"`
	WeightKg         *float64 `json:"weight_kg,omitempty" validate:"omitempty,gte=0"`
}

// ListShipmentsRequest filters shipment listings.
type ListShipmentsRequest struct {
	ManifestID  *int64     `json:"manifest_id,omitempty"`
	CustomerID  *int64     `json:"customer_id,omitempty"`
	Destination *string    `json:"destination,omitempty"`
	Unassigned  bool       `json:"unassigned,omitempty"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	Search      *string    `json:"search,omitempty"`
	Limit       int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int        `json:"offset" validate:"gte=0"`
}

// InvoiceableFilter narrows the set of shipments eligible for invoicing.
type InvoiceableFilter struct {
	ManifestID  *int64
	Destination *string
	DateFrom    *time.Time
	DateTo      *time.Time
}
