package service

import (
	"time"

	"github.com/noah-isme/openrecords-api/internal/calendar"
	"github.com/noah-isme/openrecords-api/internal/models"
	appErrors "github.com/noah-isme/openrecords-api/pkg/errors"
)

var statusEdges = map[models.RequestStatus][]models.RequestStatus{
	models.RequestStatusOpen:       {models.RequestStatusInProgress, models.RequestStatusDueSoon, models.RequestStatusOverdue, models.RequestStatusClosed},
	models.RequestStatusInProgress: {models.RequestStatusDueSoon, models.RequestStatusOverdue, models.RequestStatusClosed},
	models.RequestStatusDueSoon:    {models.RequestStatusOverdue, models.RequestStatusClosed},
	models.RequestStatusOverdue:    {models.RequestStatusClosed},
	models.RequestStatusClosed:     {models.RequestStatusInProgress},
}

// CanTransition reports whether from → to is an edge of the status machine.
// Re-tiering after an extension is handled separately by retierAfterExtension.
func CanTransition(from, to models.RequestStatus) bool {
	for _, candidate := range statusEdges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// urgency classifies a due date against now: Overdue once the deadline passed,
// Due Soon inside the business-day window, otherwise empty.
func urgency(cal *calendar.Calendar, due, now time.Time, dueSoonDays int) models.RequestStatus {
	switch {
	case now.After(due):
		return models.RequestStatusOverdue
	case now.Before(due) && !due.After(cal.AddBusinessDays(now, dueSoonDays)):
		return models.RequestStatusDueSoon
	}
	return ""
}

// SweepTarget returns the status the sweeper should move the request to, or
// ErrAlreadyInState when no transition applies.
func SweepTarget(cal *calendar.Calendar, request *models.Request, now time.Time, dueSoonDays int) (models.RequestStatus, error) {
	if request.IsClosed() {
		return "", appErrors.ErrAlreadyInState
	}
	target := urgency(cal, request.DueDate, now, dueSoonDays)
	if target == "" || target == request.Status || !CanTransition(request.Status, target) {
		return "", appErrors.ErrAlreadyInState
	}
	return target, nil
}

// retierAfterExtension recomputes Due Soon and Overdue against the new due date.
// Open and In Progress requests keep their status.
func retierAfterExtension(cal *calendar.Calendar, status models.RequestStatus, due, now time.Time, dueSoonDays int) models.RequestStatus {
	switch status {
	case models.RequestStatusDueSoon, models.RequestStatusOverdue:
		if tier := urgency(cal, due, now, dueSoonDays); tier != "" {
			return tier
		}
		return models.RequestStatusInProgress
	}
	return status
}
