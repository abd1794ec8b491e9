package providers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v3"
)

// RegisterRoutes registers the chat status and tool routes via Fiber.
func (p *ChatClient) RegisterRoutes(group fiber.Router) {
	group.Get("/chat/status", p.handleStatus)
	group.Get("/chat/sessions", p.handleSessions)
	group.Get("/chat/tools", p.handleTools)
	group.Post("/chat/tools/:name", p.handleToolCall)
}

func (p *ChatClient) handleStatus(c fiber.Ctx) error {
	if !p.active {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "inactive",
			"message": "chat client is not active",
		})
	}
	return c.JSON(fiber.Map{
		"connected": p.conn.IsConnected(),
		"state":     p.conn.State().String(),
		"listeners": p.conn.Listeners().Count(),
		"sessions":  len(p.service.Sessions()),
		"dials":     p.conn.Dials(),
		"epoch":     p.conn.Epoch(),
	})
}

func (p *ChatClient) handleSessions(c fiber.Ctx) error {
	if !p.active {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "inactive",
			"message": "chat client is not active",
		})
	}
	infos := p.service.SessionInfos()
	return c.JSON(fiber.Map{
		"sessions": infos,
		"count":    len(infos),
	})
}

func (p *ChatClient) handleTools(c fiber.Ctx) error {
	tools := p.Tools()
	out := make([]fiber.Map, 0, len(tools))
	for _, t := range tools {
		out = append(out, fiber.Map{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.InputSchema,
		})
	}
	return c.JSON(fiber.Map{"tools": out})
}

// handleToolCall runs the named tool with the JSON request body as input.
func (p *ChatClient) handleToolCall(c fiber.Ctx) error {
	if !p.active {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "inactive",
			"message": "chat client is not active",
		})
	}
	name := c.Params("name")
	var tool *ToolDefinition
	for _, t := range p.Tools() {
		if t.Name == name {
			tool = &t
			break
		}
	}
	if tool == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown tool", "tool": name})
	}

	input := map[string]any{}
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input", "message": err.Error()})
		}
	}
	out, err := tool.Handler(input)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "tool failed", "message": err.Error()})
	}
	return c.JSON(fiber.Map{"tool": name, "result": out})
}
