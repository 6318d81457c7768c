package orchestrator

import "github.com/fieldforge/extract/runtime/detect"

// DefaultContextDefinitions is the stock system-context table: a
// keyword-weighted classifier covering the domains callers most commonly
// extract from. A caller with more specialized vocabulary is free to
// supply its own []detect.Definition to Config instead.
func DefaultContextDefinitions() []detect.Definition {
	return []detect.Definition{
		{
			ID:      "finance",
			Summary: "a financial document describing amounts owed, paid, or projected",
			Keywords: []string{
				"invoice", "invoice total", "due date", "payment", "remit", "balance",
				"amount due", "subtotal", "tax", "net-30", "purchase order", "revenue",
				"billing", "account number",
			},
		},
		{
			ID:      "crm",
			Summary: "a customer relationship record describing a contact or account",
			Keywords: []string{
				"contact", "lead", "opportunity", "account owner", "pipeline", "deal",
				"customer name", "company", "sales rep", "stage", "territory",
			},
		},
		{
			ID:      "healthcare",
			Summary: "a clinical or patient-care document",
			Keywords: []string{
				"patient", "diagnosis", "prescription", "dosage", "physician", "provider",
				"treatment", "symptom", "medical record", "insurance", "npi", "icd-10",
			},
		},
		{
			ID:      "logistics",
			Summary: "a shipping or fulfillment document",
			Keywords: []string{
				"shipment", "tracking number", "carrier", "warehouse", "manifest",
				"bill of lading", "freight", "delivery date", "pallet", "consignee",
			},
		},
		{
			ID:      "legal",
			Summary: "a legal agreement or filing",
			Keywords: []string{
				"agreement", "plaintiff", "defendant", "whereas", "governing law",
				"counsel", "clause", "indemnif", "jurisdiction", "effective date",
				"terminat",
			},
		},
		{
			ID:      "ecommerce",
			Summary: "an online order or product listing",
			Keywords: []string{
				"order number", "sku", "cart", "checkout", "shipping address",
				"product name", "quantity", "discount code", "return window",
			},
		},
		{
			ID:      "marketing",
			Summary: "a marketing or campaign performance document",
			Keywords: []string{
				"campaign", "impressions", "click-through", "conversion rate",
				"audience segment", "ad spend", "engagement", "open rate",
			},
		},
		{
			ID:      "real_estate",
			Summary: "a property listing or lease document",
			Keywords: []string{
				"listing", "square footage", "tenant", "landlord", "lease term",
				"property address", "appraisal", "escrow", "zoning", "mortgage",
			},
		},
	}
}
