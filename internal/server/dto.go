package server

// SlaughterPartInput is one carcass part recorded at slaughter.
type SlaughterPartInput struct {
	PartType string  `json:"part_type"`
	WeightKg float64 `json:"weight_kg,omitempty"`
}

// SlaughterRequest records the one-time carcass measurement. A split
// carcass lists its parts up front.
type SlaughterRequest struct {
	CarcassType string               `json:"carcass_type" enum:"whole,split"`
	Parts       []SlaughterPartInput `json:"parts,omitempty"`
}

// ProductTransferLine is one product line in a transfer to a shop. An
// omitted quantity transfers the row's full remaining stock.
type ProductTransferLine struct {
	ProductID int64  `json:"product_id"`
	Quantity  *int64 `json:"quantity,omitempty"`
}
