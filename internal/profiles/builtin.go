package profiles

import (
	"strconv"

	"github.com/joseph-ayodele/po-extractor/internal/normalize"
)

const soldToKey = "sold_to_num"

var (
	refineDefaults = []string{
		"Quantity: do not remove the unit of measure.",
		"Required Delivery Date: remove any additional text and keep only the date in MM/DD/YYYY format.",
		"Deliver to: ensure the address is correctly formatted and remove any duplicate information.",
	}
	addressInstructions = []string{
		"Deliver to: extract the shipping address that starts with the facility name.",
		"Do not include contact details like phone numbers, emails, or names of people.",
		"Include the company name, street address, city, state, and zip code.",
	}
)

func maga(prefix string, n int) []normalize.Candidate {
	out := make([]normalize.Candidate, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, normalize.Candidate{
			Code:    prefix + strconv.Itoa(i),
			Address: "MAGA" + strconv.Itoa(i),
		})
	}
	return out
}

// Builtin returns the registry of customers known out of the box.
func Builtin() *Registry {
	r, err := NewRegistry(builtinProfiles()...)
	if err != nil {
		panic("profiles: invalid builtin profile: " + err.Error())
	}
	return r
}

func builtinProfiles() []*Profile {
	return []*Profile{
		{
			Code:   "C",
			Label:  "Customer C",
			SoldTo: &SoldTo{Key: soldToKey, Value: "csp_101"},
			ShipTo: maga("csh_", 2),
			Pages:  PagesAllButLast,
			ExtractInstructions: append([]string{
				"Required Delivery Date: look for a delivery date in the format MM/DD/YYYY.",
			}, addressInstructions...),
			RefineInstructions: refineDefaults,
		},
		{
			Code:   "N",
			Label:  "Customer N",
			SoldTo: &SoldTo{Key: soldToKey, Value: "nsp_35499"},
			ShipTo: maga("csh_", 2),
			Pages:  PagesAllButLast,
			ExtractInstructions: append([]string{
				"Required Delivery Date: look for a delivery date in the format MM/DD/YYYY.",
			}, addressInstructions...),
			RefineInstructions: []string{
				"Quantity: if the unit of measure is lb keep it as lb and format the number with commas as thousands separators and periods as decimal separators.",
				refineDefaults[1],
				refineDefaults[2],
			},
		},
		{
			Code:   "B",
			Label:  "Customer B",
			SoldTo: &SoldTo{Key: soldToKey, Value: "bsp_222"},
			ShipTo: maga("bsh_", 2),
			Pages:  PagesAllButLast,
			ExtractInstructions: append([]string{
				"Quantity: keep the unit of measure next to the number.",
				"Required Delivery Date: look for a delivery date in the format MM/DD/YYYY.",
			}, addressInstructions...),
			RefineInstructions: refineDefaults,
		},
		{
			Code:          "G",
			Label:         "Customer G",
			SoldTo:        &SoldTo{Key: soldToKey, Value: "gsp_123"},
			ShipTo:        maga("gsh_", 2),
			Pages:         PagesAllButLast,
			ExtractFields: []string{"Document Number", "Quantity", "Delivery Date", "Material/Description", "Shipping Address"},
			ExtractInstructions: []string{
				"Document Number: the number that follows \"Document Number\".",
				"Delivery Date: look for a delivery date in the format MM/DD/YYYY.",
				"Material/Description: the number following \"Description\", not the description text.",
				"Shipping Address: extract the shipping address that starts with the facility name.",
				"Quantity: the unit of measure is KG.",
			},
			RefineInstructions: []string{
				"Quantity: the unit of measure is KG.",
				refineDefaults[1],
				refineDefaults[2],
			},
		},
		{
			Code:          "BA",
			Label:         "Customer BA",
			SoldTo:        &SoldTo{Key: soldToKey, Value: "basp_567"},
			ShipTo:        maga("bash_", 3),
			Pages:         PagesFirstTwo,
			ExtractFields: []string{"Order No", "QUANTITY", "Delivery Date", "Material No.", "Delivery Address"},
			ExtractInstructions: append([]string{
				"Do not read or consider anything after \"Appendix to the Purchase Order\".",
				"Order No: all digits following \"Order No\".",
				"Quantity: all digits following \"Quantity\".",
				"Delivery Date: look for a delivery date in the format MM/DD/YYYY.",
				"Material No.: the number following \"Material No.\".",
			}, addressInstructions[1:]...),
			RefineInstructions: refineDefaults,
		},
		{
			Code:   "COM",
			Label:  "Customer COM",
			SoldTo: &SoldTo{Key: soldToKey, Value: "cosp_222"},
			ShipTo: maga("comsh_", 2),
			Pages:  PagesAllButLast,
			ExtractInstructions: append([]string{
				"Required Delivery Date: look for a delivery date in the format MM/DD/YYYY.",
			}, addressInstructions...),
			RefineInstructions: refineDefaults,
		},
		{
			Code:  DefaultCode,
			Label: "Customer Default",
			ShipTo: []normalize.Candidate{
				{Code: "default_1", Address: "Default Shipping Address 1"},
				{Code: "default_2", Address: "Default Shipping Address 2"},
				{Code: "default_3", Address: "Default Shipping Address 3"},
			},
			NormalizeOnly: true,
			Pages:         PagesAll,
			ExtractInstructions: []string{
				"Purchase Order Number: the customer's order number from the header.",
				"Quantity: the ordered quantity with its unit of measure.",
				"Required Delivery Date: in the format MM/DD/YYYY.",
				"Material Number: from the line item section, usually in the same row as the order quantity and UOM. Ignore the material description.",
				"Deliver to: ONLY the SHIP TO address. Ignore Vendor, Invoice, Billing, Remit To, PO Box and Mailing addresses.",
				"If the item section contains more than one item number, return an object with an \"Order Lines\" array holding one object per line.",
			},
		},
	}
}
