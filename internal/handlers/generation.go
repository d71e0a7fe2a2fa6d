package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nkosei/brightpath-backend/internal/middleware"
	"github.com/nkosei/brightpath-backend/internal/services"
	"github.com/nkosei/brightpath-backend/internal/types"
)

type GenerationHandler struct {
	svc services.GenerationService
}

func NewGenerationHandler(svc services.GenerationService) *GenerationHandler {
	return &GenerationHandler{svc: svc}
}

type generateLessonRequest struct {
	Topic       string `json:"topic" binding:"required"`
	CourseID    string `json:"course_id" binding:"required"`
	Modality    string `json:"modality" binding:"required"`
	Style       string `json:"style"`
	VoiceID     string `json:"voice_id"`
	ContextHint string `json:"context_hint"`
}

// POST /api/generation/lesson
func (h *GenerationHandler) GenerateLesson(c *gin.Context) {
	var body generateLessonRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := types.GenerationRequest{
		Topic:       body.Topic,
		CourseID:    body.CourseID,
		ContextHint: body.ContextHint,
		Modality:    types.Modality(body.Modality),
		Style:       types.TeachingStyle(body.Style),
		UserID:      middleware.UserID(c),
		VoiceID:     body.VoiceID,
	}

	result := h.svc.GenerateLesson(c.Request.Context(), req)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /api/generation/slides/:lesson_id/regenerate/:index
func (h *GenerationHandler) RegenerateSlide(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("lesson_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lesson id"})
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slide index"})
		return
	}

	deck, err := h.svc.RegenerateSlide(c.Request.Context(), lessonID, index)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slides": deck})
}
