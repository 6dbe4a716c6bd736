package api

import "github.com/samcharles93/strata/internal/export"

type Inspection struct {
	ID        string           `json:"id"`
	Object    string           `json:"object"`
	CreatedAt int64            `json:"created_at"`
	Document  *export.Document `json:"document"`
}

type InspectionSummary struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	CreatedAt int64  `json:"created_at"`
	Name      string `json:"name,omitempty"`
	Format    string `json:"format"`
	Tensors   int    `json:"tensors"`
}

type InspectionList struct {
	Object string              `json:"object"`
	Data   []InspectionSummary `json:"data"`
}

type DeleteInspectionResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ErrorResponse struct {
	Error ResponseError `json:"error"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}
