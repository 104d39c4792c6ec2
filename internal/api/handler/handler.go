package handler

import (
	"log/slog"

	"github.com/cuongbtq/event-scheduler/internal/lifecycle"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Controller    *lifecycle.Controller
	CallbackToken string
}

// EventHandler handles event-lifecycle HTTP requests
type EventHandler struct {
	logger     *slog.Logger
	controller *lifecycle.Controller
}

// NewEventHandler creates a new EventHandler instance
func NewEventHandler(deps *Dependencies) *EventHandler {
	return &EventHandler{
		logger:     deps.Logger,
		controller: deps.Controller,
	}
}
