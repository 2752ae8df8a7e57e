package manifests

import "time"

// Manifest is one truck departure (DBL). The two derived totals are
// recomputed whenever any contributing cost field changes:
// total_tagihan = loco - tekor, total_bayar = sum of the fee fields.
type Manifest struct {
	ID            int64     `json:"id"`
	Number        string    `json:"number"`
	ManifestDate  time.Time `json:"manifest_date"`
	VehicleNumber string    `json:"vehicle_number"`
	DriverName    string    `json:"driver_name"`
	DriverPhone   *string   `json:"driver_phone,omitempty"`
	LocoAmount    float64   `json:"loco_amount"`
	TekorAmount   float64   `json:"tekor_amount"`
	DriverFee     float64   `json:"driver_fee"`
	Commission    float64   `json:"commission"`
	LoadingCost   float64   `json:"loading_cost"`
	MiscCost      float64   `json:"misc_cost"`
	AdminFee      float64   `json:"admin_fee"`
	OtherCost     float64   `json:"other_cost"`
	TotalTagihan  float64   `json:"total_tagihan"`
	TotalBayar    float64   `json:"total_bayar"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Summary is a manifest header with its shipment count, for listings.
type Summary struct {
	Manifest
	ShipmentCount int `json:"shipment_count"`
}

// OperationalCost is the cost breakdown used for margin reporting. It is
// independent of the billing totals on the manifest itself.
type OperationalCost struct {
	ManifestID      int64     `json:"manifest_id"`
	FuelCost        float64   `json:"fuel_cost"`
	TollCost        float64   `json:"toll_cost"`
	PortFee         float64   `json:"port_fee"`
	DriverAllowance float64   `json:"driver_allowance"`
	RepairCost      float64   `json:"repair_cost"`
	OtherCost       float64   `json:"other_cost"`
	Notes           *string   `json:"notes,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Total sums every cost component.
func (c OperationalCost) Total() float64 {
	return c.FuelCost + c.TollCost + c.PortFee + c.DriverAllowance + c.RepairCost + c.OtherCost
}

// CreateManifestRequest carries fields for creating a manifest. The number
// is generated when left empty.
type CreateManifestRequest struct {
	Number        string     `json:"number,omitempty" validate:"omitempty,max=50"`
	ManifestDate  *time.Time `json:"manifest_date,omitempty"`
	VehicleNumber string     `json:"vehicle_number" validate:"required,max=20"`
	DriverName    string     `json:"driver_name" validate:"required,max=100"`
	DriverPhone   *string    `json:"driver_phone,omitempty" validate:"omitempty,max=50"`
	CostFields
}

// UpdateManifestRequest carries optional header fields plus cost fields for
// a partial update. Absent cost fields keep their stored value.
type UpdateManifestRequest struct {
	ManifestDate  *time.Time `json:"manifest_date,omitempty"`
	VehicleNumber *string    `json:"vehicle_number,omitempty" validate:"omitempty,max=20"`
	DriverName    *string    `json:"driver_name,omitempty" validate:"omitempty,max=100"`
	DriverPhone   *string    `json:"driver_phone,omitempty" validate:"omitempty,max=50"`
	CostFields
}

// CostFields are the contributing inputs of the two derived totals. All
// optional so partial updates never zero out untouched fields.
type CostFields struct {
	LocoAmount  *float64 `json:"loco_amount,omitempty" validate:"omitempty,gte=0"`
	TekorAmount *float64 `json:"tekor_amount,omitempty" validate:"omitempty,gte=0"`
	DriverFee   *float64 `json:"driver_fee,omitempty" validate:"omitempty,gte=0"`
	Commission  *float64 `json:"commission,omitempty" validate:"omitempty,gte=0"`
	LoadingCost *float64 `json:"loading_cost,omitempty" validate:"omitempty,gte=0"`
	MiscCost    *float64 `json:"misc_cost,omitempty" validate:"omitempty,gte=0"`
	AdminFee    *float64 `json:"admin_fee,omitempty" validate:"omitempty,gte=0"`
	OtherCost   *float64 `json:"other_cost,omitempty" validate:"omitempty,gte=0"`
}

// SaveCostsRequest carries the operational cost breakdown.
type SaveCostsRequest struct {
	FuelCost        float64 `json:"fuel_cost" validate:"gte=0"`
	TollCost        float64 `json:"toll_cost" validate:"gte=0"`
	PortFee         float64 `json:"port_fee" validate:"gte=0"`
	DriverAllowance float64 `json:"driver_allowance" validate:"gte=0"`
	RepairCost      float64 `json:"repair_cost" validate:"gte=0"`
	OtherCost       float64 `json:"other_cost" validate:"gte=0"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// ListManifestsRequest filters the manifest listing.
type ListManifestsRequest struct {
	Search   *string    `json:"search,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	Limit    int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int        `json:"offset" validate:"gte=0"`
}

// applyCostFields merges the supplied fields onto the manifest and
// recomputes both derived totals from the merged values.
func applyCostFields(m *Manifest, f CostFields) {
	if f.LocoAmount != nil {
		m.LocoAmount = *f.LocoAmount
	}
	if f.TekorAmount != nil {
		m.TekorAmount = *f.TekorAmount
	}
	if f.DriverFee != nil {
		m.DriverFee = *f.DriverFee
	}
	if f.Commission != nil {
		m.Commission = *f.Commission
	}
	if f.LoadingCost != nil {
		m.LoadingCost = *f.LoadingCost
	}
	if f.MiscCost != nil {
		m.MiscCost = *f.MiscCost
	}
	if f.AdminFee != nil {
		m.AdminFee = *f.AdminFee
	}
	if f.OtherCost != nil {
		m.OtherCost = *f.OtherCost
	}
	m.TotalTagihan = m.LocoAmount - m.TekorAmount
	m.TotalBayar = m.DriverFee + m.Commission + m.LoadingCost + m.MiscCost + m.AdminFee + m.OtherCost
}
