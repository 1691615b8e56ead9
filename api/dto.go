/*
dto.go - Request/response shapes for the operational API

PURPOSE:
  Wire types are kept separate from domain types so the JSON surface can
  stay stable while the domain evolves. Timestamps are RFC 3339; money
  travels as decimal strings.

SEE ALSO:
  - handlers.go: conversion and serialization
*/
package api

import (
	"time"

	"github.com/uniformhq/entitlement-engine/integrity"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/renewal"
)

// =============================================================================
// EMPLOYEES & ENTITLEMENT
// =============================================================================

type EmployeeDTO struct {
	ID          string `json:"id"`
	Number      string `json:"employeeNumber,omitempty"`
	CompanyID   string `json:"companyId"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Designation string `json:"designation"`
	Gender      string `json:"gender"`
	Active      bool   `json:"active"`
	JoinedAt    string `json:"joinedAt,omitempty"`
}

// EntitlementLineDTO is one category's computed entitlement.
type EntitlementLineDTO struct {
	Category      string `json:"category"`
	Quantity      int    `json:"quantity"`
	CadenceMonths int    `json:"cadenceMonths"`
}

// BalanceLineDTO adds the remaining allowance for the current period.
type BalanceLineDTO struct {
	Category      string `json:"category"`
	Entitlement   int    `json:"entitlement"`
	Available     int    `json:"available"`
	PeriodStart   string `json:"periodStart"`
	CadenceMonths int    `json:"cadenceMonths"`
}

// =============================================================================
// ORDERS
// =============================================================================

type PlaceOrderRequest struct {
	EmployeeRef string           `json:"employeeRef"`
	Actor       string           `json:"actor,omitempty"`
	Items       []PlaceOrderItem `json:"items"`
}

type PlaceOrderItem struct {
	ProductID   string `json:"productId,omitempty"`
	Subcategory string `json:"subcategory"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice,omitempty"`
}

// ActionRequest carries the actor and, for cancel/return, a reason.
type ActionRequest struct {
	Actor  string `json:"actor,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type OrderItemDTO struct {
	ProductID          string `json:"productId,omitempty"`
	Subcategory        string `json:"subcategory"`
	Category           string `json:"category"`
	Quantity           int    `json:"quantity"`
	UnitPrice          string `json:"unitPrice"`
	TotalPrice         string `json:"totalPrice"`
	DispatchedQuantity int    `json:"dispatchedQuantity,omitempty"`
	DeliveredQuantity  int    `json:"deliveredQuantity,omitempty"`
}

type StatusChangeDTO struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	At    string `json:"at"`
	Actor string `json:"actor,omitempty"`
	Note  string `json:"note,omitempty"`
}

type OrderDTO struct {
	ID         string            `json:"id"`
	Number     string            `json:"orderNumber"`
	EmployeeID string            `json:"employeeId"`
	CompanyID  string            `json:"companyId"`
	Items      []OrderItemDTO    `json:"items"`
	Total      string            `json:"total"`
	Status     string            `json:"status"`
	PlacedAt   string            `json:"placedAt"`
	History    []StatusChangeDTO `json:"history,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

func toOrderDTO(o orders.Order) OrderDTO {
	dto := OrderDTO{
		ID:         o.ID.Canonical(),
		Number:     o.Number,
		EmployeeID: o.EmployeeID.Canonical(),
		CompanyID:  o.CompanyID.Canonical(),
		Total:      o.Total.String(),
		Status:     string(o.Status),
		PlacedAt:   o.PlacedAt.Format(time.RFC3339),
		Reason:     o.Reason,
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ProductID:          item.ProductID.Canonical(),
			Subcategory:        item.Subcategory,
			Category:           string(item.Category),
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice.String(),
			TotalPrice:         item.TotalPrice.String(),
			DispatchedQuantity: item.DispatchedQuantity,
			DeliveredQuantity:  item.DeliveredQuantity,
		})
	}
	for _, change := range o.History {
		dto.History = append(dto.History, StatusChangeDTO{
			From:  string(change.From),
			To:    string(change.To),
			At:    change.At.Format(time.RFC3339),
			Actor: change.Actor,
			Note:  change.Note,
		})
	}
	return dto
}

// =============================================================================
// RUNS & REPORTS
// =============================================================================

type RunDTO struct {
	ID          string `json:"id"`
	StartedAt   string `json:"startedAt"`
	Status      string `json:"status"`
	Processed   int    `json:"processed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	CompletedAt string `json:"completedAt,omitempty"`
	Error       string `json:"error,omitempty"`
}

func toRunDTO(run renewal.Run) RunDTO {
	dto := RunDTO{
		ID:        run.ID,
		StartedAt: run.StartedAt.Format(time.RFC3339),
		Status:    string(run.Status),
		Processed: run.Processed,
		Skipped:   run.Skipped,
		Failed:    run.Failed,
		Error:     run.Error,
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

type FindingDTO struct {
	Collection string `json:"collection"`
	DocumentID string `json:"documentId"`
	Field      string `json:"field"`
	RawValue   string `json:"rawValue"`
	Kind       string `json:"kind"`
}

type ReportDTO struct {
	ID          string       `json:"id"`
	StartedAt   string       `json:"startedAt"`
	Status      string       `json:"status"`
	Scanned     int          `json:"scanned"`
	Findings    []FindingDTO `json:"findings,omitempty"`
	CompletedAt string       `json:"completedAt,omitempty"`
	Error       string       `json:"error,omitempty"`
}

func toReportDTO(r integrity.Report) ReportDTO {
	dto := ReportDTO{
		ID:        r.ID,
		StartedAt: r.StartedAt.Format(time.RFC3339),
		Status:    string(r.Status),
		Scanned:   r.Scanned,
		Error:     r.Error,
	}
	for _, f := range r.Findings {
		dto.Findings = append(dto.Findings, FindingDTO{
			Collection: f.Collection,
			DocumentID: f.DocumentID,
			Field:      f.Field,
			RawValue:   f.RawValue,
			Kind:       string(f.Kind),
		})
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
