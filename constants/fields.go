package constants

// Keys of the refined record returned by the extraction step and of the
// canonical record produced by reconciliation.
const (
	FieldPurchaseOrderNumber  = "Purchase Order Number"
	FieldQuantity             = "Quantity"
	FieldUnit                 = "Unit"
	FieldRequiredDeliveryDate = "Required Delivery Date"
	FieldMaterialNumber       = "Material Number"
	FieldDeliverTo            = "Deliver to"
)

// RequiredFields are the fields every refined record is expected to carry.
var RequiredFields = []string{
	FieldPurchaseOrderNumber,
	FieldQuantity,
	FieldRequiredDeliveryDate,
	FieldMaterialNumber,
	FieldDeliverTo,
}

// UnmatchedShipTo replaces the delivery address when no ship-to code is confident enough.
const UnmatchedShipTo = "N/A"
