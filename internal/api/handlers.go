package api

import (
	"bytes"
	"strings"

	"github.com/gigurra/subscription-tracker/internal"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func userID(c *fiber.Ctx) (string, error) {
	id := strings.TrimSpace(c.Params("userID"))
	if id == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "missing user id")
	}
	return id, nil
}

func parseOptions(currency, dateFormat string) (internal.ParseOptions, error) {
	opts := internal.ParseOptions{Currency: currency}
	if dateFormat != "" {
		f, err := internal.ParseDateFormat(dateFormat)
		if err != nil {
			return opts, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		opts.DateFormat = f
	}
	return opts, nil
}

func (s *Server) importCSV(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	if len(c.Body()) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty body, expected CSV")
	}

	result, err := s.tracker.ImportCSV(c.UserContext(), user, bytes.NewReader(c.Body()), c.Query("currency"))
	if err != nil {
		return err
	}
	return c.JSON(newImportResponse(result))
}

func (s *Server) importStatementText(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	var req statementTextRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	opts, err := parseOptions(req.Currency, req.DateFormat)
	if err != nil {
		return err
	}

	result, err := s.tracker.ImportStatementText(c.UserContext(), user, req.Text, opts)
	if err != nil {
		return err
	}
	return c.JSON(newImportResponse(result))
}

func (s *Server) importStatementDocument(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}

	// The statement must not outlive the request in fasthttp's reusable buffers.
	raw := c.Request().Body()
	defer clear(raw)

	up, err := readStatementUpload(raw, string(c.Request().Header.MultipartFormBoundary()))
	if err != nil {
		return err
	}
	defer clear(up.doc)

	opts, err := parseOptions(up.currency, up.dateFormat)
	if err != nil {
		return err
	}
	result, err := s.tracker.ImportDocument(c.UserContext(), user, up.doc, opts)
	if err != nil {
		return err
	}
	return c.JSON(newImportResponse(result))
}

func (s *Server) listTransactions(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	txs, err := s.tracker.ListTransactions(c.UserContext(), user, c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	items := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		items = append(items, newTransactionJSON(t))
	}
	return c.JSON(fiber.Map{"items": items})
}

func (s *Server) recalculate(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	summary, err := s.tracker.Recalculate(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"created": summary.Created,
		"updated": summary.Updated,
	})
}

func (s *Server) listSubscriptions(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	views, err := s.tracker.ListSubscriptions(c.UserContext(), user)
	if err != nil {
		return err
	}
	items := make([]subscriptionJSON, 0, len(views))
	for _, v := range views {
		items = append(items, newSubscriptionViewJSON(v))
	}
	return c.JSON(fiber.Map{"items": items})
}

func (s *Server) getSubscription(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid subscription id")
	}
	view, err := s.tracker.GetSubscription(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(newSubscriptionViewJSON(*view))
}

func (s *Server) createManualSubscription(c *fiber.Ctx) error {
	user, err := userID(c)
	if err != nil {
		return err
	}
	var req manualRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}

	in := internal.ManualInput{
		MerchantName: req.MerchantName,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Interval:     internal.BillingInterval(req.Interval),
	}
	if req.GuideID != "" {
		if in.GuideID, err = uuid.Parse(req.GuideID); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid guideId")
		}
	}
	if in.NextExpectedDate, err = parseOptionalDate(req.NextExpectedDate); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "nextExpectedDate must be YYYY-MM-DD")
	}

	sub, err := s.tracker.CreateManualSubscription(c.UserContext(), user, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(newSubscriptionJSON(*sub))
}

func (s *Server) listGuides(c *fiber.Ctx) error {
	guides, err := s.tracker.ListGuides(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]guideJSON, 0, len(guides))
	for _, g := range guides {
		items = append(items, newGuideJSON(g))
	}
	return c.JSON(fiber.Map{"items": items})
}

func (s *Server) getGuide(c *fiber.Ctx) error {
	g, err := s.tracker.GetGuideBySlug(c.UserContext(), c.Params("slug"))
	if err != nil {
		return err
	}
	return c.JSON(newGuideJSON(*g))
}
