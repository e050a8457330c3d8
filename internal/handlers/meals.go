package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mealvault/mealvault/internal/models"
	"github.com/mealvault/mealvault/internal/repository"
	apperrors "github.com/mealvault/mealvault/pkg/errors"
	"github.com/mealvault/mealvault/pkg/response"
)

// MealHandler exposes the meal repository over HTTP.
type MealHandler struct {
	repo *repository.MealRepository
}

func NewMealHandler(repo *repository.MealRepository) *MealHandler {
	return &MealHandler{repo: repo}
}

// List handles GET /api/meals. With limit/offset query parameters it returns
// one page plus pagination metadata; without them it returns every meal.
func (h *MealHandler) List(c *gin.Context) {
	if h == nil || h.repo == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	ctx := requestContext(c)

	rawLimit := strings.TrimSpace(c.Query("limit"))
	rawOffset := strings.TrimSpace(c.Query("offset"))

	if rawLimit == "" && rawOffset == "" {
		meals, err := h.repo.GetAll(ctx)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, meals)
		return
	}

	limit, err := strconv.Atoi(rawLimit)
	if err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("limit must be an integer"))
		return
	}

	offset := 0
	if rawOffset != "" {
		offset, err = strconv.Atoi(rawOffset)
		if err != nil {
			response.Error(c, apperrors.ErrBadRequest.WithMessage("offset must be an integer"))
			return
		}
	}

	meals, err := h.repo.GetPaginated(ctx, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, meals, &response.Meta{
		Limit:  limit,
		Offset: offset,
		Count:  len(meals),
	})
}

// Get handles GET /api/meals/:id
func (h *MealHandler) Get(c *gin.Context) {
	if h == nil || h.repo == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("meal id is required"))
		return
	}

	meal, err := h.repo.GetByID(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, meal)
}

// Create handles POST /api/meals
func (h *MealHandler) Create(c *gin.Context) {
	if h == nil || h.repo == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var meal models.Meal
	if err := c.ShouldBindJSON(&meal); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("invalid meal payload"))
		return
	}

	id, err := h.repo.Add(requestContext(c), &meal)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"id": id})
}

type createBatchRequest struct {
	Meals []models.Meal `json:"meals"`
}

// CreateBatch handles POST /api/meals/batch. The batch commits atomically; a
// failure on any record leaves nothing persisted.
func (h *MealHandler) CreateBatch(c *gin.Context) {
	if h == nil || h.repo == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var body createBatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("invalid batch payload"))
		return
	}

	meals := make([]*models.Meal, len(body.Meals))
	for i := range body.Meals {
		meals[i] = &body.Meals[i]
	}

	ids, err := h.repo.AddBatch(requestContext(c), meals)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"ids": ids})
}

// Update handles PUT /api/meals/:id
func (h *MealHandler) Update(c *gin.Context) {
	if h == nil || h.repo == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("meal id is required"))
		return
	}

	var meal models.Meal
	if err := c.ShouldBindJSON(&meal); err != nil {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("invalid meal payload"))
		return
	}
	meal.ID = id

	if err := h.repo.Update(requestContext(c), &meal); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, meal)
}

// Delete handles DELETE /api/meals/:id
func (h *MealHandler) Delete(c *gin.Context) {
	if h == nil || h.repo == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, apperrors.ErrBadRequest.WithMessage("meal id is required"))
		return
	}

	if err := h.repo.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
