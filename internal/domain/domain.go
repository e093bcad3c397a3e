package domain

// Entity kinds used across rejections, appeals and audit records.
const (
	KindAnimal  = "animal"
	KindPart    = "part"
	KindProduct = "product"
)

// Unit kinds for memberships and affiliations.
const (
	UnitKindProcessing = "processing_unit"
	UnitKindShop       = "shop"
)

type Actor struct {
	ID          string  `json:"id"`
	Role        string  `json:"role" enum:"farmer,processing_unit,shop,admin"`
	DisplayName string  `json:"display_name,omitempty"`
	UnitKind    *string `json:"unit_kind,omitempty" enum:"processing_unit,shop"`
	UnitID      *int64  `json:"unit_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type ProcessingUnit struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Shop struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Membership struct {
	ID        int64  `json:"id"`
	UnitKind  string `json:"unit_kind" enum:"processing_unit,shop"`
	UnitID    int64  `json:"unit_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"owner,manager,worker,supervisor,quality_control"`
	Status    string `json:"status" enum:"pending,active,suspended,left"`
	InvitedBy string `json:"invited_by,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Animal struct {
	ID               int64   `json:"id"`
	ProducerID       string  `json:"producer_id"`
	Tag              string  `json:"tag"`
	Species          string  `json:"species,omitempty"`
	Status           string  `json:"status" enum:"active,slaughtered"`
	CarcassType      *string `json:"carcass_type,omitempty" enum:"whole,split"`
	SlaughteredAt    *string `json:"slaughtered_at,omitempty" format:"date-time"`
	TransferredTo    *int64  `json:"transferred_to,omitempty"`
	TransferredAt    *string `json:"transferred_at,omitempty" format:"date-time"`
	ReceivedBy       *string `json:"received_by,omitempty"`
	ReceivedAt       *string `json:"received_at,omitempty" format:"date-time"`
	RejectionStatus  *string `json:"rejection_status,omitempty"`
	RejectedBy       *string `json:"rejected_by,omitempty"`
	RejectedAt       *string `json:"rejected_at,omitempty" format:"date-time"`
	AppealStatus     *string `json:"appeal_status,omitempty" enum:"pending,approved,denied"`
	AppealResolvedAt *string `json:"appeal_resolved_at,omitempty" format:"date-time"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type CarcassPart struct {
	ID               int64   `json:"id"`
	AnimalID         int64   `json:"animal_id"`
	PartType         string  `json:"part_type"`
	WeightKg         float64 `json:"weight_kg,omitempty"`
	TransferredTo    *int64  `json:"transferred_to,omitempty"`
	TransferredAt    *string `json:"transferred_at,omitempty" format:"date-time"`
	ReceivedBy       *string `json:"received_by,omitempty"`
	ReceivedAt       *string `json:"received_at,omitempty" format:"date-time"`
	RejectionStatus  *string `json:"rejection_status,omitempty"`
	RejectedBy       *string `json:"rejected_by,omitempty"`
	RejectedAt       *string `json:"rejected_at,omitempty" format:"date-time"`
	AppealStatus     *string `json:"appeal_status,omitempty" enum:"pending,approved,denied"`
	AppealResolvedAt *string `json:"appeal_resolved_at,omitempty" format:"date-time"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type Product struct {
	ID               int64   `json:"id"`
	AnimalID         int64   `json:"animal_id"`
	ProcessingUnitID int64   `json:"processing_unit_id"`
	BatchNumber      string  `json:"batch_number"`
	Name             string  `json:"name"`
	Quantity         int64   `json:"quantity"`
	CreatedBy        string  `json:"created_by"`
	TransferredTo    *int64  `json:"transferred_to,omitempty"`
	TransferredAt    *string `json:"transferred_at,omitempty" format:"date-time"`
	ReceivedBy       *string `json:"received_by,omitempty"`
	ReceivedAt       *string `json:"received_at,omitempty" format:"date-time"`
	RejectionStatus  *string `json:"rejection_status,omitempty"`
	RejectedBy       *string `json:"rejected_by,omitempty"`
	RejectedAt       *string `json:"rejected_at,omitempty" format:"date-time"`
	AppealStatus     *string `json:"appeal_status,omitempty" enum:"pending,approved,denied"`
	AppealResolvedAt *string `json:"appeal_resolved_at,omitempty" format:"date-time"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

// RejectionReason is the immutable record created when a unit rejects an entity.
type RejectionReason struct {
	ID         int64  `json:"id"`
	EntityKind string `json:"entity_kind" enum:"animal,part,product"`
	EntityID   int64  `json:"entity_id"`
	Category   string `json:"category"`
	Reason     string `json:"reason"`
	Notes      string `json:"notes,omitempty"`
	RejectedBy string `json:"rejected_by"`
	UnitKind   string `json:"unit_kind" enum:"processing_unit,shop"`
	UnitID     int64  `json:"unit_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Appeal struct {
	ID         int64   `json:"id"`
	EntityKind string  `json:"entity_kind" enum:"animal,part,product"`
	EntityID   int64   `json:"entity_id"`
	Status     string  `json:"status" enum:"pending,approved,denied"`
	OpenedBy   string  `json:"opened_by"`
	OpenedAt   string  `json:"opened_at" format:"date-time"`
	ResolvedBy *string `json:"resolved_by,omitempty"`
	Notes      string  `json:"notes,omitempty"`
	ResolvedAt *string `json:"resolved_at,omitempty" format:"date-time"`
}

type AuditRecord struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts" format:"date-time"`
	Action       string `json:"action"`
	PerformedBy  string `json:"performed_by"`
	AffectedUser string `json:"affected_user,omitempty"`
	UnitKind     string `json:"unit_kind,omitempty"`
	UnitID       *int64 `json:"unit_id,omitempty"`
	EntityKind   string `json:"entity_kind,omitempty"`
	EntityID     *int64 `json:"entity_id,omitempty"`
	Description  string `json:"description,omitempty"`
	OldValues    string `json:"old_values_json,omitempty"`
	NewValues    string `json:"new_values_json,omitempty"`
	Metadata     string `json:"metadata_json,omitempty"`
}

type Notification struct {
	ID        int64  `json:"id"`
	ActorID   string `json:"actor_id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	DataJSON  string `json:"data_json,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
