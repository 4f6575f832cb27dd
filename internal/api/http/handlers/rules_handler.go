package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-automation/internal/api/dto"
	"github.com/spec-kit/ticket-automation/internal/domain"
	"github.com/spec-kit/ticket-automation/internal/service"
	"github.com/spec-kit/ticket-automation/pkg/util"
)

// RulesHandler manages automation rule administration endpoints.
type RulesHandler struct {
	service *service.RuleService
}

// NewRulesHandler constructs handler.
func NewRulesHandler(ruleService *service.RuleService) *RulesHandler {
	return &RulesHandler{service: ruleService}
}

// CreateRule POST /admin/rules.
func (h *RulesHandler) CreateRule(c *fiber.Ctx) error {
	var req dto.RuleRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	rule, err := h.service.CreateRule(c.UserContext(), ruleInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ruleResponse(rule)})
}

// UpdateRule PUT /admin/rules/:id.
func (h *RulesHandler) UpdateRule(c *fiber.Ctx) error {
	var req dto.RuleRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	rule, err := h.service.UpdateRule(c.UserContext(), c.Params("id"), ruleInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// DeleteRule DELETE /admin/rules/:id.
func (h *RulesHandler) DeleteRule(c *fiber.Ctx) error {
	if err := h.service.DeleteRule(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// GetRule GET /admin/rules/:id.
func (h *RulesHandler) GetRule(c *fiber.Ctx) error {
	rule, err := h.service.GetRule(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// ListRules GET /admin/rules.
func (h *RulesHandler) ListRules(c *fiber.Ctx) error {
	includeInactive := c.QueryBool("include_inactive", false)
	rules, err := h.service.ListRules(c.UserContext(), includeInactive)
	if err != nil {
		return err
	}
	items := make([]dto.RuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, ruleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func ruleInput(req dto.RuleRequest) service.RuleInput {
	return service.RuleInput{
		Name:           req.Name,
		Description:    req.Description,
		RuleType:       req.RuleType,
		Trigger:        req.Trigger,
		ConditionMatch: req.ConditionMatch,
		Conditions:     req.Conditions,
		Actions:        req.Actions,
		IsActive:       req.IsActive,
		Order:          req.Order,
	}
}

func ruleResponse(rule *domain.AutomationRule) dto.RuleResponse {
	return dto.RuleResponse{
		ID:             rule.ID,
		Name:           rule.Name,
		Description:    rule.Description,
		RuleType:       rule.RuleType,
		Trigger:        rule.Trigger,
		ConditionMatch: rule.ConditionMatch,
		Conditions:     rule.Conditions,
		Actions:        rule.Actions,
		IsActive:       rule.IsActive,
		Order:          rule.Order,
		ExecutionCount: rule.ExecutionCount,
		LastExecutedAt: rule.LastExecutedAt,
		CreatedAt:      rule.CreatedAt,
		UpdatedAt:      rule.UpdatedAt,
	}
}
