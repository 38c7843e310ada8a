// handlers/duel_routes.go
package handlers

import (
	"strings"

	"pvp-duel-engine/games"
	"pvp-duel-engine/middleware"
	"pvp-duel-engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type createChallengeRequest struct {
	OpponentID     *string         `json:"opponent_id"`
	OpponentName   string          `json:"opponent_name"`
	ChallengerName string          `json:"challenger_name"`
	GameType       string          `json:"game_type"`
	Format         string          `json:"format"`
	Stake          decimal.Decimal `json:"stake"`
}

type moveRequest struct {
	Value *int `json:"value"`
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "kind": "validation"})
}

// SetupDuelRoutes registers the duel API. The gateway forwards /api/v1/duel/... to /duels/...
func SetupDuelRoutes(app *fiber.App, duels *services.DuelService) {
	g := app.Group("/duels", middleware.UserContextMiddleware())

	g.Post("/challenges", func(c *fiber.Ctx) error {
		var req createChallengeRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		name := req.ChallengerName
		if name == "" {
			name = middleware.UserName(c)
		}
		d, err := duels.CreateChallenge(c.UserContext(), services.CreateChallengeInput{
			ChallengerID:   middleware.UserID(c),
			ChallengerName: name,
			OpponentID:     req.OpponentID,
			OpponentName:   req.OpponentName,
			GameType:       gameType(req.GameType),
			Format:         format(req.Format),
			Stake:          req.Stake,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(d)
	})

	g.Get("/challenges/:id", func(c *fiber.Ctx) error {
		d, err := duels.GetChallenge(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	})

	g.Post("/challenges/:id/accept", func(c *fiber.Ctx) error {
		d, err := duels.Accept(c.UserContext(), c.Params("id"), middleware.UserID(c), middleware.UserName(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	})

	g.Post("/challenges/:id/decline", func(c *fiber.Ctx) error {
		d, err := duels.Decline(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	})

	g.Post("/challenges/:id/cancel", func(c *fiber.Ctx) error {
		d, err := duels.Cancel(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	})

	g.Get("/sessions/:session_id", func(c *fiber.Ctx) error {
		d, err := duels.GetRecord(c.UserContext(), c.Params("session_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(d)
	})

	g.Post("/sessions/:session_id/moves", func(c *fiber.Ctx) error {
		var req moveRequest
		if err := c.BodyParser(&req); err != nil || req.Value == nil {
			return badBody(c)
		}
		res, err := duels.SubmitMove(c.UserContext(), c.Params("session_id"), middleware.UserID(c), *req.Value)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	g.Get("/sessions/:session_id/settlement", func(c *fiber.Ctx) error {
		st, err := duels.Settlement(c.UserContext(), c.Params("session_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(st)
	})

	g.Get("/me/active", func(c *fiber.Ctx) error {
		list, err := duels.ActiveDuels(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"duels": list})
	})

	g.Get("/me/history", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 20)
		offset := c.QueryInt("offset", 0)
		list, total, err := duels.History(c.UserContext(), middleware.UserID(c), limit, offset)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"duels": list, "total": total, "limit": limit, "offset": offset})
	})

	g.Get("/open", func(c *fiber.Ctx) error {
		list, err := duels.OpenChallenges(c.UserContext(), c.QueryInt("limit", 20))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"duels": list})
	})

	g.Get("/me/stats", func(c *fiber.Ctx) error {
		st, err := duels.Stats(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(st)
	})

	g.Get("/stats/:user_id", func(c *fiber.Ctx) error {
		st, err := duels.Stats(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(st)
	})

	g.Get("/stream", duels.StreamUserEventsSSE)
}

func gameType(s string) games.GameType { return games.GameType(strings.ToLower(strings.TrimSpace(s))) }

func format(s string) games.Format { return games.Format(strings.ToLower(strings.TrimSpace(s))) }
