package database

import (
	"heartline/internal/models"
	"heartline/internal/utils"

	"github.com/google/uuid"
)

// Rules shared by every RelationshipStore backend.

func validateSendRequest(fromID, toID uuid.UUID, status models.ConnectionStatus) error {
	if fromID == uuid.Nil || toID == uuid.Nil {
		return utils.NewValidationError("fromUserId and toUserId are required")
	}
	if status != models.StatusInterested {
		return utils.NewValidationError("Invalid status: " + string(status))
	}
	if fromID == toID {
		return utils.NewValidationError("Cannot send connection request to yourself")
	}
	return nil
}

func validateReviewRequest(reviewerID, fromID uuid.UUID, status models.ConnectionStatus) error {
	if reviewerID == uuid.Nil || fromID == uuid.Nil {
		return utils.NewValidationError("fromUserId is required")
	}
	if status != models.StatusAccepted && status != models.StatusRejected {
		return utils.NewValidationError("Invalid status: " + string(status))
	}
	if reviewerID == fromID {
		return utils.NewValidationError("Cannot update connection request for yourself")
	}
	return nil
}
