// Package model defines the shared types of the lead enrichment pipeline.
package model

// Lead is a company/domain pair to be enriched. Leads are loaded once and
// never mutated by the pipeline.
type Lead struct {
	Company string `json:"company" csv:"company_name" validate:"required"`
	Domain  string `json:"domain" csv:"domain" validate:"required,fqdn"`
}
