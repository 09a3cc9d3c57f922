package controller

import (
	"log"
	"strings"
	"time"

	"econsensus/models"
	"econsensus/service"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DecisionRequest is the decision payload. Author, editor, excerpt and
// last_status are never accepted; the organization comes from the URL on
// create and from organization_id on update.
type DecisionRequest struct {
	Description    *string `json:"description" validate:"omitempty,min=1"`
	DecidedDate    *string `json:"decided_date"`
	EffectiveDate  *string `json:"effective_date"`
	ReviewDate     *string `json:"review_date"`
	ExpiryDate     *string `json:"expiry_date"`
	Deadline       *string `json:"deadline"`
	ArchivedDate   *string `json:"archived_date"`
	Budget         *string `json:"budget" validate:"omitempty,max=255"`
	People         *string `json:"people" validate:"omitempty,max=255"`
	MeetingPeople  *string `json:"meeting_people" validate:"omitempty,max=255"`
	Status         *string `json:"status" validate:"omitempty,decisionstatus"`
	Tags           *string `json:"tags"`
	OrganizationID *uint   `json:"organization_id"`
	MinorEdit      bool    `json:"minor_edit"`
	Watch          *bool   `json:"watch"`
}

type DecisionResponse struct {
	*models.Decision
	*models.DecisionSummary
	Watching bool     `json:"watching"`
	TagList  []string `json:"tag_list"`
}

type DecisionListItem struct {
	*models.Decision
	FeedbackCount int64 `json:"feedback_count"`
}

// sortColumns whitelists the list orderings
var sortColumns = map[string]string{
	"id":            "decisions.id",
	"excerpt":       "decisions.excerpt",
	"deadline":      "decisions.deadline",
	"last_modified": "decisions.last_modified",
	"feedbackcount": "(SELECT count(*) FROM feedback WHERE feedback.decision_id = decisions.id AND feedback.deleted_at IS NULL)",
}

type DecisionController struct {
	db        *gorm.DB
	decisions *service.DecisionService
	logger    *log.Logger
}

func NewDecisionController(db *gorm.DB, decisions *service.DecisionService, logger *log.Logger) *DecisionController {
	return &DecisionController{
		db:        db,
		decisions: decisions,
		logger:    logger,
	}
}

// GetDecisions lists an organization's decisions.
// Query: status=all|discussion|proposal|decision|archived, sort=[-]id|excerpt|deadline|last_modified|feedbackcount
func (dc *DecisionController) GetDecisions(c *fiber.Ctx) error {
	orgID, err := paramID(c, "orgID")
	if err != nil {
		return respondError(c, err)
	}
	if err := requireMember(dc.db, orgID, currentUser(c).ID); err != nil {
		return respondError(c, err)
	}

	query := dc.db.Model(&models.Decision{}).Where("organization_id = ?", orgID)

	status := c.Query("status", "all")
	if status != "all" {
		if !models.IsValidStatus(status) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown status "+status, nil)
		}
		query = query.Where("status = ?", status)
	}

	sort := c.Query("sort", "-last_modified")
	desc := strings.HasPrefix(sort, "-")
	column, ok := sortColumns[strings.TrimPrefix(sort, "-")]
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown sort "+sort, nil)
	}
	query = query.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: column, Raw: true}, Desc: desc},
		{Column: clause.Column{Name: "decisions.id"}},
	}})

	var decisions []models.Decision
	if err := query.Find(&decisions).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch decisions", err)
	}

	counts, err := dc.feedbackCounts(decisions)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count feedback", err)
	}

	items := make([]DecisionListItem, len(decisions))
	for i := range decisions {
		items[i] = DecisionListItem{Decision: &decisions[i], FeedbackCount: counts[decisions[i].ID]}
	}
	return c.JSON(utils.SuccessResponse(items))
}

func (dc *DecisionController) feedbackCounts(decisions []models.Decision) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(decisions))
	if len(decisions) == 0 {
		return counts, nil
	}
	ids := make([]uint, len(decisions))
	for i, d := range decisions {
		ids[i] = d.ID
	}

	var rows []struct {
		DecisionID uint
		Count      int64
	}
	err := dc.db.Model(&models.Feedback{}).
		Select("decision_id, count(*) as count").
		Where("decision_id IN ?", ids).
		Group("decision_id").
		Scan(&rows).Error
	for _, row := range rows {
		counts[row.DecisionID] = row.Count
	}
	return counts, err
}

// CreateDecision adds a decision to the organization in the URL. The author
// watches it unless watch is false.
func (dc *DecisionController) CreateDecision(c *fiber.Ctx) error {
	user := currentUser(c)
	orgID, err := paramID(c, "orgID")
	if err != nil {
		return respondError(c, err)
	}
	if err := requireMember(dc.db, orgID, user.ID); err != nil {
		return respondError(c, err)
	}

	var req DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if req.Description == nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "description is required", nil)
	}

	decision := models.Decision{
		OrganizationID: orgID,
		AuthorID:       &user.ID,
		EditorID:       &user.ID,
	}
	if err := applyDecisionRequest(&decision, &req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	saveErr := dc.decisions.Save(&decision)
	if decision.ID == 0 {
		return respondSaveError(c, "decision", saveErr)
	}
	if req.Watch != nil && !*req.Watch {
		if err := dc.decisions.Unwatch(&decision, user.ID); err != nil {
			dc.logger.Printf("Failed to unwatch decision %d: %v", decision.ID, err)
		}
	}
	if saveErr != nil {
		return respondSaveError(c, "decision", saveErr)
	}

	dc.logger.Printf("User %d created decision %d", user.ID, decision.ID)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(decision))
}

// GetDecision returns the decision with its feedback statistics
func (dc *DecisionController) GetDecision(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	decision, err := findDecision(dc.db, id, user.ID)
	if err != nil {
		return respondError(c, err)
	}

	summary, err := models.SummarizeFeedback(dc.db, decision.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to summarize feedback", err)
	}
	watching, err := models.IsWatching(dc.db, decision, user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check watchers", err)
	}

	return c.JSON(utils.SuccessResponse(DecisionResponse{
		Decision:        decision,
		DecisionSummary: summary,
		Watching:        watching,
		TagList:         decision.TagList(),
	}))
}

// UpdateDecision edits the decision. minor_edit suppresses notifications;
// organization_id moves the decision to another of the caller's organizations.
func (dc *DecisionController) UpdateDecision(c *fiber.Ctx) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	decision, err := findDecision(dc.db, id, user.ID)
	if err != nil {
		return respondError(c, err)
	}

	var req DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != decision.OrganizationID {
		if err := requireMember(dc.db, *req.OrganizationID, user.ID); err != nil {
			return respondError(c, err)
		}
		decision.OrganizationID = *req.OrganizationID
	}
	if err := applyDecisionRequest(decision, &req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	decision.EditorID = &user.ID
	decision.MinorEdit = req.MinorEdit
	decision.Author = nil

	if err := dc.decisions.Save(decision); err != nil {
		return respondSaveError(c, "decision", err)
	}

	if req.Watch != nil {
		if *req.Watch {
			err = dc.decisions.Watch(decision, user.ID)
		} else {
			err = dc.decisions.Unwatch(decision, user.ID)
		}
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update watch", err)
		}
	}

	return c.JSON(utils.SuccessResponse(decision))
}

func (dc *DecisionController) WatchDecision(c *fiber.Ctx) error {
	return dc.setWatching(c, true)
}

func (dc *DecisionController) UnwatchDecision(c *fiber.Ctx) error {
	return dc.setWatching(c, false)
}

func (dc *DecisionController) setWatching(c *fiber.Ctx, watch bool) error {
	user := currentUser(c)
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	decision, err := findDecision(dc.db, id, user.ID)
	if err != nil {
		return respondError(c, err)
	}

	if watch {
		err = dc.decisions.Watch(decision, user.ID)
	} else {
		err = dc.decisions.Unwatch(decision, user.ID)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update watch", err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"watching": watch}))
}

// applyDecisionRequest copies the fields present in the request. An empty
// date string clears the date.
func applyDecisionRequest(d *models.Decision, req *DecisionRequest) error {
	if req.Description != nil {
		d.Description = *req.Description
	}

	dates := []struct {
		value  *string
		target **time.Time
	}{
		{req.DecidedDate, &d.DecidedDate},
		{req.EffectiveDate, &d.EffectiveDate},
		{req.ReviewDate, &d.ReviewDate},
		{req.ExpiryDate, &d.ExpiryDate},
		{req.Deadline, &d.Deadline},
		{req.ArchivedDate, &d.ArchivedDate},
	}
	for _, date := range dates {
		if date.value == nil {
			continue
		}
		parsed, err := utils.ParseDate(date.value)
		if err != nil {
			return err
		}
		*date.target = parsed
	}

	if req.Budget != nil {
		d.Budget = *req.Budget
	}
	if req.People != nil {
		d.People = emptyToNil(*req.People)
	}
	if req.MeetingPeople != nil {
		d.MeetingPeople = emptyToNil(*req.MeetingPeople)
	}
	if req.Status != nil {
		d.Status = *req.Status
	}
	if req.Tags != nil {
		d.Tags = emptyToNil(strings.Join(strings.Fields(*req.Tags), " "))
	}
	return nil
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
